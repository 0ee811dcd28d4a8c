package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/lectern/core"
)

// DefaultMaxNestedDepth bounds how many archive levels the extractor
// descends into. The outermost archive is depth 0.
const DefaultMaxNestedDepth = 2

// DiscoveredFile is a document found during extraction, together with the
// chain of archives it was extracted from. The path points into an
// ephemeral workspace that is removed once the visit callback returns.
type DiscoveredFile struct {
	Path       string
	Provenance core.ProvenanceChain
}

// ErrAbortWalk stops an extraction walk when returned (or wrapped) by a
// visit callback. The aborted walk is not recorded as a file failure;
// the caller owns reporting whatever made it abort.
var ErrAbortWalk = errors.New("archive walk aborted")

// VisitFunc receives each discovered document in discovery order. A
// returned error marks that one file failed; the batch continues unless
// the error wraps ErrAbortWalk. The callback is responsible for
// recording successful files on the stats accumulator (it alone knows
// the resulting chunk count).
type VisitFunc func(f DiscoveredFile) error

// Extractor extracts validated archives into isolated, disposable
// workspaces, recursing into nested archives up to a bounded depth.
// Recursion is strictly sequential and depth-first per archive, bounding
// peak disk usage to one workspace chain at a time.
type Extractor struct {
	validator  *Validator
	maxDepth   int
	isDocument func(name string) bool
	logger     *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxNestedDepth bounds archive recursion. Depth 0 means nested
// archives are never descended into.
func WithMaxNestedDepth(depth int) ExtractorOption {
	return func(e *Extractor) {
		if depth >= 0 {
			e.maxDepth = depth
		}
	}
}

// WithValidator replaces the default validator.
func WithValidator(v *Validator) ExtractorOption {
	return func(e *Extractor) {
		if v != nil {
			e.validator = v
		}
	}
}

// WithDocumentFilter sets the predicate deciding which extracted files are
// handed to the visit callback; everything else counts as skipped.
func WithDocumentFilter(isDocument func(name string) bool) ExtractorOption {
	return func(e *Extractor) {
		if isDocument != nil {
			e.isDocument = isDocument
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
	}
}

// NewExtractor creates an extractor with default limits: every file is
// considered a document unless a filter is provided.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		validator:  NewValidator(DefaultLimits(), nil),
		maxDepth:   DefaultMaxNestedDepth,
		isDocument: func(string) bool { return true },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract validates the archive, extracts it into a fresh temporary
// workspace, and walks the result depth-first, invoking visit for every
// discovered document. The workspace of every recursion level is removed
// unconditionally once that level completes, including on error and on
// context cancellation (cleanup itself is not cancellable).
//
// A rejected or corrupt top-level archive returns the typed error.
// Failures below the top level are recorded on stats and do not abort
// sibling work.
func (e *Extractor) Extract(ctx context.Context, archivePath string, visit VisitFunc, stats *core.ProcessingStats) error {
	if stats == nil {
		stats = &core.ProcessingStats{}
	}
	return e.extract(ctx, archivePath, nil, 0, visit, stats)
}

func (e *Extractor) extract(ctx context.Context, archivePath string, provenance core.ProvenanceChain, depth int, visit VisitFunc, stats *core.ProcessingStats) error {
	name := filepath.Base(archivePath)

	members, err := e.validator.Validate(archivePath)
	if err != nil {
		return err
	}

	workspace, err := os.MkdirTemp("", "lectern-extract-*")
	if err != nil {
		return &core.ExtractionError{Archive: name, Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			e.logger.Warn("failed to remove extraction workspace", "workspace", workspace, "err", rmErr)
		}
	}()

	e.logger.Debug("extracting archive", "archive", name, "depth", depth, "members", len(members))

	if err := extractMembers(archivePath, workspace); err != nil {
		return &core.ExtractionError{Archive: name, Err: err}
	}

	chain := provenance.Push(name)
	return e.enumerate(ctx, workspace, chain, depth, visit, stats)
}

// enumerate walks one extracted workspace in lexical order, recursing into
// nested archives and handing documents to the visit callback.
func (e *Extractor) enumerate(ctx context.Context, workspace string, chain core.ProvenanceChain, depth int, visit VisitFunc, stats *core.ProcessingStats) error {
	return filepath.WalkDir(workspace, func(entryPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(workspace, entryPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if isJunkPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		switch {
		case IsArchive(name):
			stats.NestedArchives++
			if depth >= e.maxDepth {
				e.logger.Warn("nested archive depth exceeded", "archive", name, "depth", depth+1)
				stats.RecordError("%s: nested archive depth exceeded (limit %d)", name, e.maxDepth)
				return nil
			}
			if err := e.extract(ctx, entryPath, chain, depth+1, visit, stats); err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrAbortWalk) {
					return err
				}
				// Rejection of a nested archive aborts only that archive.
				e.logger.Warn("nested archive failed", "archive", name, "err", err)
				stats.RecordError("%s: %v", name, err)
			}
		case e.isDocument(name):
			if err := visit(DiscoveredFile{Path: entryPath, Provenance: chain}); err != nil {
				if errors.Is(err, ErrAbortWalk) {
					return err
				}
				e.logger.Warn("document failed", "file", name, "err", err)
				stats.FilesFailed++
				stats.RecordError("%s: %v", name, err)
			}
		default:
			e.logger.Debug("skipping unsupported file", "file", name)
			stats.FilesSkipped++
		}
		return nil
	})
}

// extractMembers writes the archive's contents into the workspace.
// Validation has already vetted every member; only regular files and
// directories are materialized.
func extractMembers(archivePath, workspace string) error {
	switch format := DetectFormat(archivePath); format {
	case FormatZip:
		return extractZip(archivePath, workspace)
	case FormatTar, FormatTarGz:
		return extractTar(archivePath, format == FormatTarGz, workspace)
	default:
		return fmt.Errorf("unrecognized archive format")
	}
}

// destPath resolves a member path inside the workspace, refusing anything
// that resolves outside it.
func destPath(workspace, memberPath string) (string, error) {
	dest := filepath.Join(workspace, filepath.FromSlash(memberPath))
	if !strings.HasPrefix(dest, filepath.Clean(workspace)+string(os.PathSeparator)) {
		return "", fmt.Errorf("member path escapes workspace: %s", memberPath)
	}
	return dest, nil
}

func extractZip(archivePath, workspace string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		dest, err := destPath(workspace, f.Name)
		if err != nil {
			return err
		}
		if f.Mode().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip member %s: %w", f.Name, err)
		}
		err = writeFile(dest, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("extracting zip member %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractTar(archivePath string, gzipped bool, workspace string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening tar: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		dest, err := destPath(workspace, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return fmt.Errorf("extracting tar member %s: %w", hdr.Name, err)
			}
		}
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
