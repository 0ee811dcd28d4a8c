package loader

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lectern/core"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writeDocx builds a minimal DOCX container with the given paragraphs.
func writeDocx(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	var body string
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body + `</w:body></w:document>`

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("contract termination requires notice\n"))

	chunks, err := New().Load(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "contract termination requires notice", chunk.Text)
	assert.Equal(t, "notes.txt", chunk.Metadata.Filename)
	assert.Equal(t, ".txt", chunk.Metadata.FileType)
	assert.Equal(t, path, chunk.Metadata.Source)
	assert.Equal(t, 0, chunk.Metadata.Page)
	assert.Empty(t, chunk.Metadata.ArchiveSource)
	assert.NotEmpty(t, chunk.Metadata.FileHash)
}

func TestLoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "readme.md", []byte("# Heading\n\nBody text."))

	chunks, err := New().Load(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ".md", chunks[0].Metadata.FileType)
	assert.Contains(t, chunks[0].Text, "Body text.")
}

func TestLoadDocx(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "brief.docx", "First paragraph.", "Second paragraph.")

	chunks, err := New().Load(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", chunks[0].Text)
	assert.Equal(t, ".docx", chunks[0].Metadata.FileType)
	assert.Equal(t, 0, chunks[0].Metadata.Page)
}

func TestLoadProvenanceChain(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "inner.txt", []byte("nested content"))

	chain := core.ProvenanceChain{"outer.zip", "inner.zip"}
	chunks, err := New().Load(context.Background(), path, chain)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "outer.zip/inner.zip", chunks[0].Metadata.ArchiveSource)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", []byte{0x89, 0x50, 0x4e, 0x47})

	_, err := New().Load(context.Background(), path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)

	var le *core.LoaderError
	assert.ErrorAs(t, err, &le)

	// Legacy .doc is an OLE2 binary with no parser here; it stays
	// unsupported rather than failing through the text fallback.
	docPath := writeFile(t, dir, "old.doc", []byte{0xd0, 0xcf, 0x11, 0xe0})
	_, err = New().Load(context.Background(), docPath, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func TestLoadEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", []byte("   \n\t\n"))

	_, err := New().Load(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New().Load(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), nil)
	require.Error(t, err)

	var le *core.LoaderError
	assert.ErrorAs(t, err, &le)
}

func TestLoadDocxFallsBackToPlainText(t *testing.T) {
	// A mislabeled file whose content is ordinary text should still load
	// once the structured parse fails.
	dir := t.TempDir()
	path := writeFile(t, dir, "actually-text.docx", []byte("just plain words in disguise"))

	chunks, err := New().Load(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just plain words in disguise", chunks[0].Text)
}

func TestLoadDocxBinaryGarbage(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i % 7)
	}
	path := writeFile(t, dir, "corrupt.docx", data)

	_, err := New().Load(context.Background(), path, nil)
	require.Error(t, err)

	var le *core.LoaderError
	assert.ErrorAs(t, err, &le)
}

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("same content"))
	b := writeFile(t, dir, "b.txt", []byte("same content"))
	c := writeFile(t, dir, "c.txt", []byte("different content"))

	hashA, err := hashFile(a)
	require.NoError(t, err)
	hashB, err := hashFile(b)
	require.NoError(t, err)
	hashC, err := hashFile(c)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.NotEqual(t, hashA, hashC)
	assert.Len(t, hashA, 64)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", []byte("b"))
	writeFile(t, dir, "a.md", []byte("a"))
	writeFile(t, dir, "skip.png", []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := New().ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "a.md"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.txt"), files[1])
}

func TestListFilesMissingDir(t *testing.T) {
	_, err := New().ListFiles(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIsSupportedDocument(t *testing.T) {
	assert.True(t, IsSupportedDocument("report.PDF"))
	assert.True(t, IsSupportedDocument("notes.txt"))
	assert.True(t, IsSupportedDocument("brief.docx"))
	assert.True(t, IsSupportedDocument("readme.md"))
	assert.False(t, IsSupportedDocument("archive.zip"))
	assert.False(t, IsSupportedDocument("image.png"))
	assert.False(t, IsSupportedDocument("noext"))
}

func TestLooksLikeText(t *testing.T) {
	assert.True(t, looksLikeText([]byte("hello\nworld\t")))
	assert.False(t, looksLikeText(nil))
	assert.False(t, looksLikeText([]byte{'a', 0x00, 'b'}))

	noisy := make([]byte, 100)
	for i := range noisy {
		noisy[i] = 0x01
	}
	assert.False(t, looksLikeText(noisy))
}
