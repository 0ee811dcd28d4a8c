// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/core"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "lectern",
		Usage: "Document question answering over a vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index every supported file in the documents directory",
				ArgsUsage: " ",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Clear the index before reindexing",
					},
				},
			},
			{
				Name:      "add",
				Usage:     "Ingest a single document or archive",
				ArgsUsage: "FILE",
				Action:    addCommand,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question over the indexed documents",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
			},
			{
				Name:   "list",
				Usage:  "List supported files in the documents directory",
				Action: listCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
			},
			{
				Name:   "health",
				Usage:  "Check the vector store and AI endpoints",
				Action: healthCommand,
			},
			{
				Name:   "clear",
				Usage:  "Remove every indexed chunk",
				Action: clearCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openSystem(c *cli.Context) (*lectern.System, error) {
	var cfg *config.AppConfig
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return lectern.New(cfg)
}

func indexCommand(c *cli.Context) error {
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	res, err := system.IndexDocuments(c.Context, c.Bool("force"))
	if err != nil {
		return err
	}
	printResult(res.ChunksAdded, &res.ProcessingStats)
	return nil
}

func addCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: lectern add FILE")
	}
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	res, err := system.AddFile(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	printResult(res.ChunksAdded, &res.ProcessingStats)
	return nil
}

func askCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("usage: lectern ask QUESTION")
	}
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	question := strings.Join(c.Args().Slice(), " ")
	resp, err := system.Ask(c.Context, question)
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nИсточники:")
		for i, src := range resp.Sources {
			line := fmt.Sprintf("  %d. %s", i+1, src.Filename)
			if src.Archive != "" {
				line += fmt.Sprintf(" (из %s)", src.Archive)
			}
			if src.Page > 0 {
				line += fmt.Sprintf(", стр. %d", src.Page)
			}
			if src.Scored {
				line += fmt.Sprintf(" [%.2f]", src.Score)
			}
			fmt.Println(line)
		}
	}
	if resp.TokensUsed > 0 {
		slog.Debug("tokens used", "total", resp.TokensUsed)
	}
	return nil
}

func listCommand(c *cli.Context) error {
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	files, err := system.ListFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("no supported documents found")
		return nil
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	stats, err := system.Stats(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("chunks:           %d\n", stats.TotalChunks)
	fmt.Printf("store:            %s\n", stats.StoreType)
	if stats.Collection != "" {
		fmt.Printf("collection:       %s\n", stats.Collection)
	}
	fmt.Printf("embedding model:  %s\n", stats.EmbeddingModel)
	fmt.Printf("completion model: %s\n", stats.CompletionModel)
	fmt.Printf("documents dir:    %s\n", stats.DocumentsDir)
	return nil
}

func healthCommand(c *cli.Context) error {
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	if err := system.HealthCheck(c.Context); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func clearCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to clear the index without --yes")
	}
	system, err := openSystem(c)
	if err != nil {
		return err
	}
	defer system.Close()

	if err := system.Clear(c.Context); err != nil {
		return err
	}
	fmt.Println("index cleared")
	return nil
}

func printResult(chunksAdded int, stats *core.ProcessingStats) {
	fmt.Printf("chunks added: %d\n", chunksAdded)
	fmt.Printf("files processed: %d, skipped: %d, failed: %d\n",
		stats.FilesProcessed, stats.FilesSkipped, stats.FilesFailed)
	if stats.NestedArchives > 0 {
		fmt.Printf("nested archives: %d\n", stats.NestedArchives)
	}
	for _, e := range stats.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
