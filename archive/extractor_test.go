package archive

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countWorkspaces counts leftover extraction workspaces in the temp root.
func countWorkspaces(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "lectern-extract-*"))
	require.NoError(t, err)
	return len(matches)
}

func docFilter(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".txt" || ext == ".md" || ext == ".pdf"
}

func collectVisits(visited *[]DiscoveredFile, stats *core.ProcessingStats) VisitFunc {
	return func(f DiscoveredFile) error {
		*visited = append(*visited, f)
		stats.RecordProcessed(filepath.Base(f.Path), 1, f.Provenance)
		return nil
	}
}

func TestExtractFlatZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	makeZip(t, zipPath, map[string][]byte{
		"a.txt":      []byte("hello"),
		"b.md":       []byte("# notes"),
		"ignore.bin": []byte{0x01},
		".DS_Store":  []byte("junk"),
	})

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}
	var visited []DiscoveredFile

	before := countWorkspaces(t)
	err := e.Extract(context.Background(), zipPath, collectVisits(&visited, stats), stats)
	require.NoError(t, err)

	require.Len(t, visited, 2)
	for _, f := range visited {
		assert.Equal(t, "bundle.zip", f.Provenance.String())
	}
	assert.Equal(t, 2, stats.FilesProcessed)
	assert.Equal(t, 1, stats.FilesSkipped) // ignore.bin; .DS_Store is junk, not counted
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Empty(t, stats.Errors)

	// Workspace released after extraction completes.
	assert.Equal(t, before, countWorkspaces(t))
}

func TestExtractNestedArchiveProvenance(t *testing.T) {
	dir := t.TempDir()

	innerPath := filepath.Join(dir, "inner.zip")
	makeZip(t, innerPath, map[string][]byte{"deep.txt": []byte("deep content")})
	innerBytes, err := os.ReadFile(innerPath)
	require.NoError(t, err)

	outerPath := filepath.Join(dir, "outer.zip")
	makeZip(t, outerPath, map[string][]byte{
		"top.txt":   []byte("top content"),
		"inner.zip": innerBytes,
	})

	e := NewExtractor(WithDocumentFilter(docFilter), WithMaxNestedDepth(2))
	stats := &core.ProcessingStats{}
	var visited []DiscoveredFile

	require.NoError(t, e.Extract(context.Background(), outerPath, collectVisits(&visited, stats), stats))

	require.Len(t, visited, 2)
	byName := map[string]string{}
	for _, f := range visited {
		byName[filepath.Base(f.Path)] = f.Provenance.String()
	}
	assert.Equal(t, "outer.zip", byName["top.txt"])
	assert.Equal(t, "outer.zip/inner.zip", byName["deep.txt"])
	assert.Equal(t, 1, stats.NestedArchives)
	assert.Equal(t, 2, stats.FilesProcessed)
}

func TestExtractDepthLimit(t *testing.T) {
	dir := t.TempDir()

	// three levels: level2.zip inside level1.zip inside level0.zip
	level2 := filepath.Join(dir, "level2.zip")
	makeZip(t, level2, map[string][]byte{"deepest.txt": []byte("x")})
	l2Bytes, err := os.ReadFile(level2)
	require.NoError(t, err)

	level1 := filepath.Join(dir, "level1.zip")
	makeZip(t, level1, map[string][]byte{
		"mid.txt":    []byte("mid"),
		"level2.zip": l2Bytes,
	})
	l1Bytes, err := os.ReadFile(level1)
	require.NoError(t, err)

	level0 := filepath.Join(dir, "level0.zip")
	makeZip(t, level0, map[string][]byte{
		"top.txt":    []byte("top"),
		"level1.zip": l1Bytes,
	})

	e := NewExtractor(WithDocumentFilter(docFilter), WithMaxNestedDepth(1))
	stats := &core.ProcessingStats{}
	var visited []DiscoveredFile

	require.NoError(t, e.Extract(context.Background(), level0, collectVisits(&visited, stats), stats))

	// Files at depth 0-1 discovered, level2.zip not descended into.
	names := make([]string, 0, len(visited))
	for _, f := range visited {
		names = append(names, filepath.Base(f.Path))
	}
	assert.ElementsMatch(t, []string{"top.txt", "mid.txt"}, names)

	assert.Equal(t, 2, stats.NestedArchives)
	require.NotEmpty(t, stats.Errors)
	assert.Contains(t, stats.Errors[0], "level2.zip")
	assert.Contains(t, stats.Errors[0], "depth exceeded")
}

func TestExtractRejectedArchiveCleansWorkspace(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "evil.zip")
	makeZip(t, zipPath, map[string][]byte{"../escape.txt": []byte("x")})

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}

	before := countWorkspaces(t)
	err := e.Extract(context.Background(), zipPath, func(DiscoveredFile) error { return nil }, stats)

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, core.ReasonPathTraversal, ve.Reason)
	assert.Equal(t, before, countWorkspaces(t))
}

func TestExtractNestedRejectionIsNotFatal(t *testing.T) {
	dir := t.TempDir()

	evil := filepath.Join(dir, "evil.zip")
	makeZip(t, evil, map[string][]byte{"../escape.txt": []byte("x")})
	evilBytes, err := os.ReadFile(evil)
	require.NoError(t, err)

	outer := filepath.Join(dir, "outer.zip")
	makeZip(t, outer, map[string][]byte{
		"good.txt": []byte("good"),
		"evil.zip": evilBytes,
	})

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}
	var visited []DiscoveredFile

	require.NoError(t, e.Extract(context.Background(), outer, collectVisits(&visited, stats), stats))

	require.Len(t, visited, 1)
	assert.Equal(t, "good.txt", filepath.Base(visited[0].Path))
	require.NotEmpty(t, stats.Errors)
	assert.Contains(t, stats.Errors[0], "evil.zip")
}

func TestExtractVisitErrorRecordedNotFatal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	makeZip(t, zipPath, map[string][]byte{
		"bad.txt":  []byte("will fail"),
		"good.txt": []byte("fine"),
	})

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}
	var ok []string

	err := e.Extract(context.Background(), zipPath, func(f DiscoveredFile) error {
		name := filepath.Base(f.Path)
		if name == "bad.txt" {
			return &core.LoaderError{Path: f.Path, Err: os.ErrInvalid}
		}
		ok = append(ok, name)
		stats.RecordProcessed(name, 1, f.Provenance)
		return nil
	}, stats)
	require.NoError(t, err)

	assert.Equal(t, []string{"good.txt"}, ok)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesProcessed)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "bad.txt")
}

func TestExtractAbortWalkStopsWithoutFailureRecords(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	makeZip(t, zipPath, map[string][]byte{
		"a.txt": []byte("first"),
		"b.txt": []byte("second"),
		"c.txt": []byte("third"),
	})

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}
	var calls int

	before := countWorkspaces(t)
	err := e.Extract(context.Background(), zipPath, func(f DiscoveredFile) error {
		calls++
		return ErrAbortWalk
	}, stats)
	require.ErrorIs(t, err, ErrAbortWalk)

	// The walk stops at the first abort and records nothing for the
	// remaining members.
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, before, countWorkspaces(t))
}

func writeGzip(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()

	tarPath := filepath.Join(dir, "docs.tar")
	makeTar(t, tarPath, []tarEntry{
		regularTarEntry("docs/a.txt", []byte("tar content")),
	})

	// gzip the tar by hand
	tarBytes, err := os.ReadFile(tarPath)
	require.NoError(t, err)
	gzPath := filepath.Join(dir, "docs.tar.gz")
	writeGzip(t, gzPath, tarBytes)

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}
	var visited []DiscoveredFile

	require.NoError(t, e.Extract(context.Background(), gzPath, collectVisits(&visited, stats), stats))
	require.Len(t, visited, 1)
	assert.Equal(t, "a.txt", filepath.Base(visited[0].Path))
	assert.Equal(t, "docs.tar.gz", visited[0].Provenance.String())
}

func TestExtractCancelledContextStillCleansUp(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	makeZip(t, zipPath, map[string][]byte{"a.txt": []byte("hello")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(WithDocumentFilter(docFilter))
	stats := &core.ProcessingStats{}

	before := countWorkspaces(t)
	err := e.Extract(ctx, zipPath, func(DiscoveredFile) error { return nil }, stats)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, countWorkspaces(t))
}
