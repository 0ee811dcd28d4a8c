package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/core"
)

func chunk(text string) core.Chunk {
	return core.Chunk{Text: text, Metadata: core.ChunkMetadata{Filename: text + ".txt"}}
}

func TestAddAndCount(t *testing.T) {
	store := New(mock.NewMockEmbedder())

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	added, err := store.Add(context.Background(), []core.Chunk{chunk("a"), chunk("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	count, err = store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchFindsExactText(t *testing.T) {
	store := New(mock.NewMockEmbedder())
	_, err := store.Add(context.Background(), []core.Chunk{
		chunk("the quick brown fox"),
		chunk("contract termination terms"),
		chunk("unrelated gardening advice"),
	})
	require.NoError(t, err)

	// The mock embedder is deterministic per input text, so the exact
	// same text scores 1.0 against itself.
	hits, err := store.Search(context.Background(), "contract termination terms", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "contract termination terms", hits[0].Chunk.Text)
	assert.True(t, hits[0].Scored)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestSearchLimitsK(t *testing.T) {
	store := New(mock.NewMockEmbedder())
	_, err := store.Add(context.Background(), []core.Chunk{
		chunk("a"), chunk("b"), chunk("c"), chunk("d"),
	})
	require.NoError(t, err)

	hits, err := store.Search(context.Background(), "a", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMMRSearchReturnsDistinct(t *testing.T) {
	store := New(mock.NewMockEmbedder())
	_, err := store.Add(context.Background(), []core.Chunk{
		chunk("alpha"), chunk("beta"), chunk("gamma"), chunk("delta"),
	})
	require.NoError(t, err)

	hits, err := store.MMRSearch(context.Background(), "alpha", 3, 4, 0.7)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	seen := make(map[string]bool)
	for _, hit := range hits {
		assert.False(t, seen[hit.Chunk.Text])
		seen[hit.Chunk.Text] = true
	}
}

func TestClear(t *testing.T) {
	store := New(mock.NewMockEmbedder())
	_, err := store.Add(context.Background(), []core.Chunk{chunk("a")})
	require.NoError(t, err)

	require.NoError(t, store.Clear(context.Background()))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearchEmptyStore(t *testing.T) {
	store := New(mock.NewMockEmbedder())
	hits, err := store.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
