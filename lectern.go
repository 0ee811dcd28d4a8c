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


package lectern

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/agent"
	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ai/openai"
	"github.com/poiesic/lectern/archive"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/ingest"
	"github.com/poiesic/lectern/loader"
	"github.com/poiesic/lectern/vectorstore"
	"github.com/poiesic/lectern/vectorstore/memory"
	"github.com/poiesic/lectern/vectorstore/qdrant"
)

// System wires the document-QA stack together: AI provider, vector
// store, ingestion pipeline, and answering agent.
type System struct {
	cfg      *config.AppConfig
	provider ai.Provider
	store    vectorstore.Store
	pipeline *ingest.Pipeline
	agent    *agent.Agent
	loader   *loader.Loader
	logger   *slog.Logger
}

// SystemOption configures a System.
type SystemOption func(*systemOptions)

type systemOptions struct {
	provider ai.Provider
	store    vectorstore.Store
	logger   *slog.Logger
}

// WithProvider injects a pre-built AI provider instead of connecting
// per the configuration. Used mainly in tests.
func WithProvider(provider ai.Provider) SystemOption {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithStore injects a pre-built vector store.
func WithStore(store vectorstore.Store) SystemOption {
	return func(o *systemOptions) {
		o.store = store
	}
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) SystemOption {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

// New assembles a System from the configuration. All connections are
// established before New returns; a returned System is ready to use.
func New(cfg *config.AppConfig, opts ...SystemOption) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	provider := options.provider
	if provider == nil {
		aiCfg := ai.NewConfig(
			ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
			ai.WithCompletionHost(cfg.AI.CompletionHost),
			ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
			ai.WithCompletionModel(cfg.AI.CompletionModel),
		)
		// An unset key env keeps the default placeholder, which local
		// OpenAI-compatible services accept.
		if key := cfg.AI.ResolveAPIKey(); key != "" {
			ai.WithAPIKey(key)(aiCfg)
		}
		if cfg.AI.Temperature != 0 {
			ai.WithTemperature(cfg.AI.Temperature)(aiCfg)
		}
		if cfg.AI.MaxTokens != 0 {
			ai.WithMaxTokens(cfg.AI.MaxTokens)(aiCfg)
		}
		var err error
		provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting AI provider: %w", err)
		}
	}

	store := options.store
	if store == nil {
		var err error
		store, err = buildStore(cfg, provider, logger)
		if err != nil {
			provider.Close()
			return nil, err
		}
	}

	pipelineOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithMaxUploadSize(cfg.Ingest.MaxUploadMB << 20),
		ingest.WithChunking(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		ingest.WithMaxNestedDepth(cfg.Ingest.MaxNestedDepth),
		ingest.WithArchiveLimits(archive.Limits{
			MaxArchiveSize:      cfg.Ingest.MaxArchiveMB << 20,
			MaxMembers:          cfg.Ingest.MaxArchiveMembers,
			MaxCompressionRatio: cfg.Ingest.MaxCompressionRatio,
		}),
	}
	if cfg.Ingest.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingest.WithPoolSize(cfg.Ingest.PoolSize))
	}
	pipeline, err := ingest.NewPipeline(store, pipelineOpts...)
	if err != nil {
		store.Close()
		provider.Close()
		return nil, err
	}

	agentOpts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithSearchK(cfg.Agent.K),
		agent.WithFetchK(cfg.Agent.FetchK),
		agent.WithLambda(cfg.Agent.Lambda),
		agent.WithScoreThreshold(cfg.Agent.ScoreThreshold),
		agent.WithMaxFragmentLength(cfg.Agent.MaxFragmentChars),
	}
	if cfg.Agent.PlainSearch {
		agentOpts = append(agentOpts, agent.WithPlainSearch())
	}

	return &System{
		cfg:      cfg,
		provider: provider,
		store:    store,
		pipeline: pipeline,
		agent:    agent.New(store, provider.Completer(), agentOpts...),
		loader:   loader.New(loader.WithLogger(logger)),
		logger:   logger,
	}, nil
}

func buildStore(cfg *config.AppConfig, provider ai.Provider, logger *slog.Logger) (vectorstore.Store, error) {
	switch cfg.Store.Type {
	case "memory", "":
		return memory.New(provider.Embedder(), memory.WithLogger(logger)), nil
	case "qdrant":
		qc := cfg.Store.Qdrant
		if qc == nil {
			return nil, fmt.Errorf("store type qdrant needs a qdrant section")
		}
		return qdrant.New(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.ResolveAPIKey(),
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}, provider.Embedder(), qdrant.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// Ask answers a question over the indexed documents.
func (s *System) Ask(ctx context.Context, question string) (*agent.Response, error) {
	return s.agent.Answer(ctx, question)
}

// Upload ingests a single uploaded file (document or archive).
func (s *System) Upload(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error) {
	return s.pipeline.ProcessUpload(ctx, filename, r)
}

// AddFile ingests a single file from disk.
func (s *System) AddFile(ctx context.Context, path string) (*ingest.Result, error) {
	return s.pipeline.ProcessFile(ctx, path)
}

// IndexDocuments ingests every supported file in the configured
// documents directory. With force set, the store is cleared first so
// the index is rebuilt from scratch.
func (s *System) IndexDocuments(ctx context.Context, force bool) (*ingest.Result, error) {
	if force {
		if err := s.store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing index: %w", err)
		}
		s.logger.Info("index cleared before reindexing")
	}
	return s.pipeline.ProcessDirectory(ctx, s.cfg.Ingest.DocumentsDir)
}

// ListFiles returns the supported documents in the configured
// documents directory.
func (s *System) ListFiles() ([]string, error) {
	return s.loader.ListFiles(s.cfg.Ingest.DocumentsDir)
}

// Clear removes every indexed chunk.
func (s *System) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Stats describes the current state of the system.
type Stats struct {
	TotalChunks     int
	StoreType       string
	Collection      string
	EmbeddingModel  string
	CompletionModel string
	DocumentsDir    string
}

// Stats reports index size and active configuration.
func (s *System) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		TotalChunks:     count,
		StoreType:       s.cfg.Store.Type,
		EmbeddingModel:  s.cfg.AI.EmbeddingModel,
		CompletionModel: s.cfg.AI.CompletionModel,
		DocumentsDir:    s.cfg.Ingest.DocumentsDir,
	}
	if s.cfg.Store.Qdrant != nil {
		stats.Collection = s.cfg.Store.Qdrant.Collection
	}
	return stats, nil
}

// HealthCheck exercises each dependency with a minimal round trip:
// a store count, a test embedding, and a one-word completion.
func (s *System) HealthCheck(ctx context.Context) error {
	if _, err := s.store.Count(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if _, err := s.provider.Embedder().EmbedQuery(ctx, "тест"); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	completion, err := s.provider.Completer().Complete(ctx, []ai.Message{
		{Role: ai.RoleUser, Text: "Ответь одним словом: OK"},
	}, 0, 16)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if completion.Text == "" {
		return fmt.Errorf("completion: empty response")
	}
	return nil
}

// Close releases the pipeline workers, the store, and the provider.
func (s *System) Close() error {
	s.pipeline.Release()

	var firstErr error
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing vector store", "err", err)
		firstErr = err
	}
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
