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


package ai

import (
	"strings"
	"time"

	"github.com/poiesic/lectern/core"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server.
	EmbeddingHost string

	// CompletionHost is the base URL for the chat completion service API.
	CompletionHost string

	// APIKey authenticates against the provider. Local OpenAI-compatible
	// services typically accept any non-empty value.
	APIKey string

	// EmbeddingModel is the model identifier for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// CompletionModel is the model identifier for chat completions.
	CompletionModel string

	// Temperature is the default sampling temperature for completions.
	Temperature float64

	// MaxTokens is the default completion token budget.
	MaxTokens int

	// MaxTextLength bounds the characters of any single text sent for
	// embedding; longer inputs are truncated before the call.
	MaxTextLength int

	// MaxRetries bounds retry attempts for transient provider failures.
	MaxRetries int

	// RetryBaseDelay is the base delay for exponential backoff between
	// retry attempts.
	RetryBaseDelay time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets both embedding and completion hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.CompletionHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithCompletionHost sets the completion service host URL.
func WithCompletionHost(host string) ConfigOption {
	return func(c *Config) {
		c.CompletionHost = host
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithCompletionModel sets the completion model identifier.
func WithCompletionModel(model string) ConfigOption {
	return func(c *Config) {
		c.CompletionModel = model
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

// WithMaxTokens sets the default completion token budget.
func WithMaxTokens(maxTokens int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithMaxRetries sets the retry attempt bound.
func WithMaxRetries(maxRetries int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		CompletionHost:  defaultHost,
		APIKey:          "none",
		EmbeddingModel:  "embeddinggemma",
		CompletionModel: "qwen2.5:3b",
		Temperature:     0.1,
		MaxTokens:       1024,
		MaxTextLength:   8000,
		MaxRetries:      3,
		RetryBaseDelay:  time.Second,
	}
}

// NewConfig creates a Config with default values and applies the provided
// options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks the configuration and normalizes host URLs.
func (c *Config) Validate() error {
	c.EmbeddingHost = strings.TrimRight(strings.TrimSpace(c.EmbeddingHost), "/")
	c.CompletionHost = strings.TrimRight(strings.TrimSpace(c.CompletionHost), "/")

	if c.EmbeddingHost == "" {
		return &core.ConfigError{Field: "embedding host", Detail: "required"}
	}
	if c.CompletionHost == "" {
		return &core.ConfigError{Field: "completion host", Detail: "required"}
	}
	if c.EmbeddingModel == "" {
		return &core.ConfigError{Field: "embedding model", Detail: "required"}
	}
	if c.CompletionModel == "" {
		return &core.ConfigError{Field: "completion model", Detail: "required"}
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = 8000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	return nil
}
