package vectorstore

import (
	"context"

	"github.com/poiesic/lectern/core"
)

// Store indexes text chunks and answers similarity queries. Add embeds
// the chunk texts itself, so callers hand over plain chunks and never
// touch vectors directly.
type Store interface {
	// Add embeds and indexes the given chunks, returning how many were
	// written.
	Add(ctx context.Context, chunks []core.Chunk) (int, error)

	// Search returns the k most similar chunks to the query, best first.
	Search(ctx context.Context, query string, k int) ([]core.SearchHit, error)

	// MMRSearch fetches fetchK candidates and reranks them for diversity
	// with maximal marginal relevance, returning k hits. lambda trades
	// relevance against diversity; values outside [0,1] fall back to the
	// default.
	MMRSearch(ctx context.Context, query string, k, fetchK int, lambda float64) ([]core.SearchHit, error)

	// Count reports the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Clear removes every indexed chunk.
	Clear(ctx context.Context) error

	Close() error
}

// Default query parameters shared by store implementations.
const (
	DefaultK      = 5
	DefaultFetchK = 20
	DefaultLambda = 0.7
)
