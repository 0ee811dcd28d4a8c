package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenanceChain(t *testing.T) {
	t.Run("empty chain renders empty", func(t *testing.T) {
		var p ProvenanceChain
		assert.Equal(t, "", p.String())
	})

	t.Run("single archive renders bare name", func(t *testing.T) {
		p := ProvenanceChain{}.Push("bundle.zip")
		assert.Equal(t, "bundle.zip", p.String())
	})

	t.Run("nested archives render outermost first", func(t *testing.T) {
		p := ProvenanceChain{}.Push("outer.zip").Push("inner.tar.gz")
		assert.Equal(t, "outer.zip/inner.tar.gz", p.String())
	})

	t.Run("push does not mutate the receiver", func(t *testing.T) {
		base := ProvenanceChain{"outer.zip"}
		a := base.Push("a.zip")
		b := base.Push("b.zip")
		assert.Equal(t, "outer.zip/a.zip", a.String())
		assert.Equal(t, "outer.zip/b.zip", b.String())
		assert.Equal(t, "outer.zip", base.String())
	})
}

func TestProcessingStatsMerge(t *testing.T) {
	parent := &ProcessingStats{}
	parent.RecordProcessed("a.txt", 3, nil)
	parent.FilesSkipped = 1

	child := &ProcessingStats{}
	child.RecordProcessed("b.pdf", 5, ProvenanceChain{"inner.zip"})
	child.FilesFailed = 2
	child.NestedArchives = 1
	child.RecordError("depth exceeded: %s", "deep.zip")

	parent.Merge(child)

	assert.Equal(t, 2, parent.FilesProcessed)
	assert.Equal(t, 1, parent.FilesSkipped)
	assert.Equal(t, 2, parent.FilesFailed)
	assert.Equal(t, 1, parent.NestedArchives)
	require.Len(t, parent.ProcessedFiles, 2)
	assert.Equal(t, "b.pdf", parent.ProcessedFiles[1].Filename)
	assert.Equal(t, "inner.zip", parent.ProcessedFiles[1].ArchivePath)
	require.Len(t, parent.Errors, 1)
	assert.Contains(t, parent.Errors[0], "deep.zip")

	t.Run("merging nil is a no-op", func(t *testing.T) {
		before := *parent
		parent.Merge(nil)
		assert.Equal(t, before.FilesProcessed, parent.FilesProcessed)
	})
}

func TestDedupSourceRefs(t *testing.T) {
	refs := []SourceRef{
		{Filename: "a.pdf", Page: 1, Score: 0.9, Scored: true},
		{Filename: "a.pdf", Page: 2, Score: 0.8, Scored: true},
		{Filename: "a.pdf", Page: 1, Score: 0.7, Scored: true}, // duplicate key
		{Filename: "a.pdf", Page: 1, Archive: "bundle.zip"},    // distinct archive
		{Filename: "b.txt"},
		{Filename: "b.txt"}, // duplicate key
	}

	out := DedupSourceRefs(refs)
	require.Len(t, out, 4)

	// First-seen order and first-seen values are preserved.
	assert.Equal(t, float32(0.9), out[0].Score)
	assert.Equal(t, 2, out[1].Page)
	assert.Equal(t, "bundle.zip", out[2].Archive)
	assert.Equal(t, "b.txt", out[3].Filename)

	// No two entries share a key.
	seen := map[string]bool{}
	for _, ref := range out {
		k := fmt.Sprintf("%s|%d|%s", ref.Filename, ref.Page, ref.Archive)
		assert.False(t, seen[k])
		seen[k] = true
	}
}

func TestDedupSourceRefsEmpty(t *testing.T) {
	assert.Empty(t, DedupSourceRefs(nil))
}

func TestSourceRefFromHit(t *testing.T) {
	hit := SearchHit{
		Chunk: Chunk{
			Text: "fragment",
			Metadata: ChunkMetadata{
				Filename:      "doc.pdf",
				Page:          4,
				ArchiveSource: "outer.zip/inner.zip",
			},
		},
		Score:  0.42,
		Scored: true,
	}

	ref := SourceRefFromHit(hit)
	assert.Equal(t, "doc.pdf", ref.Filename)
	assert.Equal(t, 4, ref.Page)
	assert.Equal(t, "outer.zip/inner.zip", ref.Archive)
	assert.Equal(t, float32(0.42), ref.Score)
	assert.True(t, ref.Scored)
}
