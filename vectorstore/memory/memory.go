// Package memory implements the vector store in process memory. It
// backs tests and local runs where no Qdrant server is available;
// nothing survives a restart.
package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorstore"
)

type record struct {
	chunk  core.Chunk
	vector []float32
}

// Store keeps indexed chunks in a slice guarded by a mutex. Queries
// scan linearly, which is fine at the scale this store is meant for.
type Store struct {
	embedder ai.Embedder
	logger   *slog.Logger

	mu      sync.RWMutex
	records []record
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an in-process store using the given embedder.
func New(embedder ai.Embedder, opts ...Option) *Store {
	s := &Store{
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add embeds and appends the chunks.
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

	s.mu.Lock()
	for i, chunk := range chunks {
		s.records = append(s.records, record{chunk: chunk, vector: vectors[i]})
	}
	total := len(s.records)
	s.mu.Unlock()

	s.logger.Debug("indexed chunks", "added", len(chunks), "total", total)
	return len(chunks), nil
}

// Search returns the k most similar chunks by cosine similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]core.SearchHit, error) {
	hits, err := s.scan(ctx, query, k, false)
	return hits, err
}

// MMRSearch reranks fetchK nearest candidates for diversity.
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
	candidates := s.nearest(queryVec, fetchK, true)
	return vectorstore.MaximalMarginalRelevance(queryVec, candidates, k, lambda), nil
}

// Count reports the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear drops every record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) scan(ctx context.Context, query string, k int, withVectors bool) ([]core.SearchHit, error) {
	if k <= 0 {
		k = vectorstore.DefaultK
	}
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.nearest(queryVec, k, withVectors), nil
}

func (s *Store) nearest(queryVec []float32, limit int, withVectors bool) []core.SearchHit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]core.SearchHit, 0, len(s.records))
	for _, rec := range s.records {
		hit := core.SearchHit{
			Chunk:  rec.chunk,
			Score:  float32(cosine(queryVec, rec.vector)),
			Scored: true,
		}
		if withVectors {
			hit.Vector = rec.vector
		}
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
