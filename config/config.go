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


// Package config loads the application configuration from YAML.
// Secrets never live in the file; the config names environment
// variables and resolves them at load time, so a .env file loaded via
// godotenv works as well as real environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AIConfig configures the OpenAI-compatible embedding and completion
// endpoints.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	CompletionHost  string  `yaml:"completion_host"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	CompletionModel string  `yaml:"completion_model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// ResolveAPIKey reads the configured environment variable.
func (c AIConfig) ResolveAPIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ResolveAPIKey reads the configured environment variable.
func (c QdrantConfig) ResolveAPIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// StoreConfig selects and configures the vector store implementation.
type StoreConfig struct {
	Type   string        `yaml:"type"` // "qdrant" or "memory"
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	DocumentsDir        string  `yaml:"documents_dir"`
	MaxUploadMB         int64   `yaml:"max_upload_mb"`
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	MaxNestedDepth      int     `yaml:"max_nested_depth"`
	MaxArchiveMB        int64   `yaml:"max_archive_mb"`
	MaxArchiveMembers   int     `yaml:"max_archive_members"`
	MaxCompressionRatio float64 `yaml:"max_compression_ratio"`
	PoolSize            int     `yaml:"pool_size"`
}

// AgentConfig configures retrieval and answering.
type AgentConfig struct {
	K                int     `yaml:"k"`
	FetchK           int     `yaml:"fetch_k"`
	Lambda           float64 `yaml:"lambda"`
	ScoreThreshold   float32 `yaml:"score_threshold"`
	PlainSearch      bool    `yaml:"plain_search"`
	MaxFragmentChars int     `yaml:"max_fragment_chars"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	AI     AIConfig     `yaml:"ai"`
	Store  StoreConfig  `yaml:"store"`
	Ingest IngestConfig `yaml:"ingest"`
	Agent  AgentConfig  `yaml:"agent"`
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./lectern.yaml first, then
// ~/.config/lectern/config.yaml. If neither exists, it writes the
// defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "lectern.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration: a local
// OpenAI-compatible endpoint and an in-memory store.
func Default() *AppConfig {
	cfg := &AppConfig{
		AI: AIConfig{
			EmbeddingHost:   "http://localhost:11434/v1",
			CompletionHost:  "http://localhost:11434/v1",
			APIKeyEnv:       "LECTERN_API_KEY",
			EmbeddingModel:  "embeddinggemma",
			CompletionModel: "qwen2.5:3b",
		},
		Store: StoreConfig{Type: "memory"},
	}
	applyDefaults(cfg)
	return cfg
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "lectern", "config.yaml"), nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Type == "qdrant" {
		if cfg.Store.Qdrant == nil {
			cfg.Store.Qdrant = &QdrantConfig{}
		}
		if cfg.Store.Qdrant.URL == "" {
			cfg.Store.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.Store.Qdrant.Collection == "" {
			cfg.Store.Qdrant.Collection = "lectern_documents"
		}
		if cfg.Store.Qdrant.TimeoutSecs == 0 {
			cfg.Store.Qdrant.TimeoutSecs = 30
		}
	}
	if cfg.Ingest.DocumentsDir == "" {
		cfg.Ingest.DocumentsDir = "documents"
	}
	if cfg.Ingest.MaxUploadMB == 0 {
		cfg.Ingest.MaxUploadMB = 50
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MaxNestedDepth == 0 {
		cfg.Ingest.MaxNestedDepth = 2
	}
	if cfg.Ingest.MaxArchiveMB == 0 {
		cfg.Ingest.MaxArchiveMB = 500
	}
	if cfg.Ingest.MaxArchiveMembers == 0 {
		cfg.Ingest.MaxArchiveMembers = 1000
	}
	if cfg.Ingest.MaxCompressionRatio == 0 {
		cfg.Ingest.MaxCompressionRatio = 100
	}
	if cfg.Agent.K == 0 {
		cfg.Agent.K = 5
	}
	if cfg.Agent.FetchK == 0 {
		cfg.Agent.FetchK = 20
	}
	if cfg.Agent.Lambda == 0 {
		cfg.Agent.Lambda = 0.7
	}
	if cfg.Agent.ScoreThreshold == 0 {
		cfg.Agent.ScoreThreshold = 0.25
	}
	if cfg.Agent.MaxFragmentChars == 0 {
		cfg.Agent.MaxFragmentChars = 3500
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Store.Type {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d",
			cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize)
	}
	if cfg.Agent.Lambda < 0 || cfg.Agent.Lambda > 1 {
		return fmt.Errorf("lambda %v must be within [0,1]", cfg.Agent.Lambda)
	}
	return nil
}
