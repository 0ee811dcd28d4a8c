package loader

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/poiesic/lectern/core"
)

// documentExtensions lists the formats the loader can turn into text.
// Extensions are lowercase and include the leading dot.
var documentExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
}

// IsSupportedDocument reports whether the file name has a loadable
// document extension.
func IsSupportedDocument(name string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(name))]
}

// SupportedExtensions returns the loadable document extensions in
// sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(documentExtensions))
	for ext := range documentExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Loader turns document files into text chunks carrying provenance
// metadata. PDF files yield one chunk per page; other formats yield a
// single chunk covering the whole document. Splitting into
// retrieval-sized pieces happens downstream.
type Loader struct {
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a document loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file at path and returns its text as chunks. The
// provenance chain names the archives the file was extracted from,
// outermost first; it is empty for direct uploads.
//
// Formats with structure (PDF, DOCX) get a structured parse first. If
// that fails and the raw bytes look like text, the file is loaded as
// plain text instead; otherwise the parse failure is reported as a
// *core.LoaderError.
func (l *Loader) Load(ctx context.Context, path string, provenance core.ProvenanceChain) ([]core.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !documentExtensions[ext] {
		return nil, &core.LoaderError{Path: path, Err: core.ErrUnsupportedFileType}
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}

	meta := core.ChunkMetadata{
		Source:        path,
		Filename:      filepath.Base(path),
		FileHash:      hash,
		FileType:      ext,
		ArchiveSource: provenance.String(),
	}

	var chunks []core.Chunk
	switch ext {
	case ".pdf":
		chunks, err = l.loadPDF(ctx, path, meta)
	case ".docx":
		chunks, err = l.loadDocx(path, meta)
	default:
		chunks, err = l.loadPlainText(ctx, path, meta)
	}
	if err != nil {
		if ext == ".txt" || ext == ".md" {
			return nil, err
		}
		fallback, fbErr := l.fallbackPlainText(ctx, path, meta)
		if fbErr != nil {
			return nil, err
		}
		l.logger.Warn("structured parse failed, loaded as plain text",
			"path", path, "error", err)
		chunks = fallback
	}

	if len(chunks) == 0 {
		return nil, &core.LoaderError{Path: path, Err: fmt.Errorf("document contains no text")}
	}

	l.logger.Debug("loaded document",
		"path", path,
		"type", ext,
		"chunks", len(chunks),
		"archive", meta.ArchiveSource)
	return chunks, nil
}

// ListFiles returns the supported document files directly under dir,
// sorted by name. Subdirectories are not descended into.
func (l *Loader) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsSupportedDocument(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) loadPDF(ctx context.Context, path string, meta core.ChunkMetadata) ([]core.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}

	chunks := make([]core.Chunk, 0, len(docs))
	for i, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		m := meta
		m.Page = pageNumber(doc.Metadata, i+1)
		chunks = append(chunks, core.Chunk{Text: text, Metadata: m})
	}
	return chunks, nil
}

func (l *Loader) loadPlainText(ctx context.Context, path string, meta core.ChunkMetadata) ([]core.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}

	var chunks []core.Chunk
	for _, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		chunks = append(chunks, core.Chunk{Text: text, Metadata: meta})
	}
	return chunks, nil
}

// fallbackPlainText loads a file as raw text after a structured parse
// failed. The content must decode as text, otherwise binary noise
// would be indexed.
func (l *Loader) fallbackPlainText(ctx context.Context, path string, meta core.ChunkMetadata) ([]core.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.LoaderError{Path: path, Err: err}
	}
	if !looksLikeText(data) {
		return nil, &core.LoaderError{Path: path, Err: fmt.Errorf("content is not text")}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, &core.LoaderError{Path: path, Err: fmt.Errorf("document contains no text")}
	}
	return []core.Chunk{{Text: text, Metadata: meta}}, nil
}

// looksLikeText reports whether data is plausibly human-readable text.
// A NUL byte or a high proportion of control bytes disqualifies it.
func looksLikeText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	control := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return control*10 < len(sample)
}

// hashFile computes the BLAKE2b digest of a file's content, hex encoded.
// Identical content always produces the same digest, which lets the
// index detect re-uploads of the same file under a different name.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New(32, nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// pageNumber extracts a 1-based page number from loader metadata,
// falling back to the document's position in the parse order.
func pageNumber(metadata map[string]any, fallback int) int {
	switch v := metadata["page"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
