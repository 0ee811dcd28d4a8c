package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lectern/core"
)

func hit(name string, score float32, vector []float32) core.SearchHit {
	return core.SearchHit{
		Chunk: core.Chunk{
			Text:     name,
			Metadata: core.ChunkMetadata{Filename: name},
		},
		Score:  score,
		Scored: true,
		Vector: vector,
	}
}

func names(hits []core.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Text
	}
	return out
}

func TestMMRFirstPickIsHighestScore(t *testing.T) {
	query := []float32{1, 0}
	candidates := []core.SearchHit{
		hit("b", 0.8, []float32{0.8, 0.6}),
		hit("a", 0.95, []float32{1, 0}),
		hit("c", 0.5, []float32{0, 1}),
	}

	got := MaximalMarginalRelevance(query, candidates, 2, 0.7)
	require.NotEmpty(t, got)
	assert.Equal(t, "a", got[0].Chunk.Text)
}

func TestMMRPenalizesDuplicates(t *testing.T) {
	query := []float32{1, 0}
	// a and b are identical; c is equally relevant to the query but
	// points the other way.
	candidates := []core.SearchHit{
		hit("a", 0.9, []float32{0.9, 0.436}),
		hit("b", 0.89, []float32{0.9, 0.436}),
		hit("c", 0.88, []float32{0.9, -0.436}),
	}

	got := MaximalMarginalRelevance(query, candidates, 2, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "c"}, names(got))
}

func TestMMRPureRelevanceAtLambdaOne(t *testing.T) {
	query := []float32{1, 0}
	candidates := []core.SearchHit{
		hit("far", 0.3, []float32{0, 1}),
		hit("near", 0.9, []float32{1, 0}),
		hit("mid", 0.6, []float32{0.7, 0.714}),
	}

	got := MaximalMarginalRelevance(query, candidates, 3, 1.0)
	require.Len(t, got, 3)
	// With lambda 1 the diversity term vanishes and the ranking follows
	// query similarity alone.
	assert.Equal(t, []string{"near", "mid", "far"}, names(got))
}

func TestMMRFewerCandidatesThanK(t *testing.T) {
	query := []float32{1, 0}
	candidates := []core.SearchHit{
		hit("a", 0.9, []float32{1, 0}),
		hit("b", 0.5, []float32{0, 1}),
	}

	got := MaximalMarginalRelevance(query, candidates, 10, 0.7)
	assert.Len(t, got, 2)
}

func TestMMRNoVectorsFallsBackToScoreOrder(t *testing.T) {
	candidates := []core.SearchHit{
		hit("low", 0.2, nil),
		hit("high", 0.9, nil),
		hit("mid", 0.5, nil),
	}

	got := MaximalMarginalRelevance([]float32{1, 0}, candidates, 2, 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"high", "mid"}, names(got))
}

func TestMMREmptyQueryFallsBackToScoreOrder(t *testing.T) {
	candidates := []core.SearchHit{
		hit("high", 0.9, []float32{1, 0}),
		hit("low", 0.1, []float32{0, 1}),
	}

	got := MaximalMarginalRelevance(nil, candidates, 1, 0.7)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Chunk.Text)
}

func TestMMRNoDuplicateSelections(t *testing.T) {
	query := []float32{1, 0}
	candidates := []core.SearchHit{
		hit("a", 0.9, []float32{1, 0}),
		hit("b", 0.8, []float32{0.9, 0.436}),
		hit("c", 0.7, []float32{0.7, 0.714}),
		hit("d", 0.6, []float32{0, 1}),
	}

	got := MaximalMarginalRelevance(query, candidates, 4, 0.3)
	require.Len(t, got, 4)
	seen := make(map[string]bool)
	for _, h := range got {
		assert.False(t, seen[h.Chunk.Text], "candidate %s selected twice", h.Chunk.Text)
		seen[h.Chunk.Text] = true
	}
}

func TestMMRInvalidK(t *testing.T) {
	candidates := []core.SearchHit{hit("a", 0.9, []float32{1, 0})}
	assert.Nil(t, MaximalMarginalRelevance([]float32{1, 0}, candidates, 0, 0.7))
	assert.Nil(t, MaximalMarginalRelevance([]float32{1, 0}, nil, 3, 0.7))
}

func TestMMRLambdaOutOfRangeUsesDefault(t *testing.T) {
	query := []float32{1, 0}
	candidates := []core.SearchHit{
		hit("a", 0.9, []float32{1, 0}),
		hit("b", 0.5, []float32{0, 1}),
	}

	got := MaximalMarginalRelevance(query, candidates, 2, -3)
	assert.Len(t, got, 2)
	got = MaximalMarginalRelevance(query, candidates, 2, 99)
	assert.Len(t, got, 2)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
