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


// Package qdrant implements the vector store against a Qdrant server
// using its REST API. The collection is created lazily on first write
// with cosine distance; the vector dimension is taken from the first
// embedding batch.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorstore"
)

// upsertBatchSize caps how many points go into a single upsert request.
const upsertBatchSize = 100

// Config holds the connection settings for a Qdrant server.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Store is a vector store backed by a Qdrant collection.
type Store struct {
	cfg      Config
	embedder ai.Embedder
	client   *http.Client
	logger   *slog.Logger

	mu        sync.Mutex
	created   bool
	dimension int
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// New creates a Qdrant-backed store. The embedder supplies vectors for
// both indexed chunks and queries.
func New(cfg Config, embedder ai.Embedder, opts ...Option) (*Store, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		return nil, &core.ConfigError{Field: "qdrant.url", Detail: "must not be empty"}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, &core.ConfigError{Field: "qdrant.collection", Detail: "must not be empty"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add embeds the chunks and upserts them in batches. Returns the
// number of points written; a batch failure aborts the remainder.
func (s *Store) Add(ctx context.Context, chunks []core.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, &core.ProviderError{
			Op:  "qdrant.add",
			Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))

		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":      uuid.NewString(),
				"vector":  vectors[i],
				"payload": payloadFromChunk(chunks[i]),
			})
		}
		body := map[string]any{"points": points}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.cfg.URL, s.cfg.Collection)
		if err := s.doJSON(ctx, http.MethodPut, url, body, nil); err != nil {
			return written, err
		}
		written += len(points)
		s.logger.Debug("upserted points",
			"collection", s.cfg.Collection,
			"batch", len(points),
			"total", written)
	}
	return written, nil
}

// Search returns the k nearest chunks by cosine similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]core.SearchHit, error) {
	return s.search(ctx, query, k, false)
}

// MMRSearch fetches fetchK candidates with their vectors and reranks
// them with maximal marginal relevance.
func (s *Store) MMRSearch(ctx context.Context, query string, k, fetchK int, lambda float64) ([]core.SearchHit, error) {
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	if fetchK < k {
		fetchK = max(vectorstore.DefaultFetchK, k*4)
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	candidates, err := s.searchByVector(ctx, queryVec, fetchK, true)
	if err != nil {
		return nil, err
	}
	return vectorstore.MaximalMarginalRelevance(queryVec, candidates, k, lambda), nil
}

// Count reports the number of points in the collection. A collection
// that does not exist yet counts as empty.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", s.cfg.URL, s.cfg.Collection)
	err := s.doJSON(ctx, http.MethodPost, url, map[string]any{"exact": true}, &resp)
	if err != nil {
		var pe *core.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection. The next Add recreates it.
func (s *Store) Clear(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.cfg.URL, s.cfg.Collection)
	err := s.doJSON(ctx, http.MethodDelete, url, nil, nil)
	if err != nil {
		var pe *core.ProviderError
		if !errors.As(err, &pe) || pe.StatusCode != http.StatusNotFound {
			return err
		}
	}
	s.mu.Lock()
	s.created = false
	s.dimension = 0
	s.mu.Unlock()
	s.logger.Info("collection cleared", "collection", s.cfg.Collection)
	return nil
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) search(ctx context.Context, query string, k int, withVectors bool) ([]core.SearchHit, error) {
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.searchByVector(ctx, queryVec, k, withVectors)
}

func (s *Store) searchByVector(ctx context.Context, vector []float32, limit int, withVectors bool) ([]core.SearchHit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVectors,
	}
	var resp struct {
		Result []struct {
			Score   *float32       `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.cfg.URL, s.cfg.Collection)
	if err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		var pe *core.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	hits := make([]core.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := core.SearchHit{
			Chunk:  chunkFromPayload(r.Payload),
			Vector: r.Vector,
		}
		if r.Score != nil {
			hit.Score = *r.Score
			hit.Scored = true
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ensureCollection creates the collection once per process lifetime.
// Qdrant answers 200 when the collection already exists with the same
// schema.
func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	if dimension <= 0 {
		return &core.ProviderError{Op: "qdrant.init", Err: fmt.Errorf("invalid vector dimension %d", dimension)}
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.cfg.URL, s.cfg.Collection)
	if err := s.doJSON(ctx, http.MethodPut, url, body, nil); err != nil {
		var pe *core.ProviderError
		// 409 means someone else created it first.
		if !errors.As(err, &pe) || pe.StatusCode != http.StatusConflict {
			return err
		}
	}
	s.created = true
	s.dimension = dimension
	s.logger.Info("collection ready",
		"collection", s.cfg.Collection,
		"dimension", dimension)
	return nil
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &core.ProviderError{Op: "qdrant.request", Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &core.ProviderError{Op: "qdrant.request", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &core.ProviderError{Op: "qdrant.request", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &core.ProviderError{
			Op:         fmt.Sprintf("qdrant %s %s", method, url),
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:        fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(detail))),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &core.ProviderError{Op: "qdrant.decode", Err: err}
		}
	}
	return nil
}

func payloadFromChunk(chunk core.Chunk) map[string]any {
	payload := map[string]any{
		"text":      chunk.Text,
		"filename":  chunk.Metadata.Filename,
		"source":    chunk.Metadata.Source,
		"file_hash": chunk.Metadata.FileHash,
		"file_type": chunk.Metadata.FileType,
	}
	if chunk.Metadata.Page > 0 {
		payload["page"] = chunk.Metadata.Page
	}
	if chunk.Metadata.ArchiveSource != "" {
		payload["archive"] = chunk.Metadata.ArchiveSource
	}
	return payload
}

func chunkFromPayload(payload map[string]any) core.Chunk {
	chunk := core.Chunk{}
	if v, ok := payload["text"].(string); ok {
		chunk.Text = v
	}
	if v, ok := payload["filename"].(string); ok {
		chunk.Metadata.Filename = v
	}
	if v, ok := payload["source"].(string); ok {
		chunk.Metadata.Source = v
	}
	if v, ok := payload["file_hash"].(string); ok {
		chunk.Metadata.FileHash = v
	}
	if v, ok := payload["file_type"].(string); ok {
		chunk.Metadata.FileType = v
	}
	if v, ok := payload["page"].(float64); ok {
		chunk.Metadata.Page = int(v)
	}
	if v, ok := payload["archive"].(string); ok {
		chunk.Metadata.ArchiveSource = v
	}
	return chunk
}
