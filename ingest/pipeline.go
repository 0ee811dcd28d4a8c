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


package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/poiesic/lectern/archive"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/loader"
	"github.com/poiesic/lectern/vectorstore"
)

const (
	// DefaultChunkSize is the target length of a split chunk in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters adjacent chunks share.
	DefaultChunkOverlap = 200

	// storeBatchSize caps how many chunks go into one store write.
	storeBatchSize = 50
	// maxReportedErrors caps the error list surfaced on a Result.
	maxReportedErrors = 25
)

// chunkSeparators order the split points from strongest to weakest.
var chunkSeparators = []string{"\n\n", "\n", ".", "!", "?", ";", " "}

// Result summarizes one ingestion call. The embedded stats carry
// per-file outcomes and the (capped) error list.
type Result struct {
	ChunksAdded int
	FileType    string
	core.ProcessingStats
}

// Pipeline turns uploads, files, and directories into indexed chunks.
// Documents are loaded, split, and written to the store; archives are
// validated and walked recursively. Sibling files in a directory run
// concurrently; everything inside a single archive stays sequential.
type Pipeline struct {
	store     vectorstore.Store
	loader    *loader.Loader
	extractor *archive.Extractor
	splitter  textsplitter.RecursiveCharacter

	// filePool runs whole-file jobs, splitPool runs text splitting.
	// Keeping them separate means a file job waiting on its splits can
	// never starve the workers those splits need.
	filePool  *ants.Pool
	splitPool *ants.Pool

	maxUploadSize int64
	chunkSize     int
	chunkOverlap  int
	maxDepth      int
	limits        archive.Limits
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.filePool != nil {
			p.filePool.Release()
		}
		if p.splitPool != nil {
			p.splitPool.Release()
		}
		filePool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		splitPool, err := ants.NewPool(size)
		if err != nil {
			filePool.Release()
			return err
		}
		p.filePool = filePool
		p.splitPool = splitPool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMaxUploadSize sets the upload size ceiling in bytes.
func WithMaxUploadSize(size int64) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return fmt.Errorf("max upload size must be positive, got %d", size)
		}
		p.maxUploadSize = size
		return nil
	}
}

// WithChunking overrides the split size and overlap.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		if size <= 0 || overlap < 0 || overlap >= size {
			return fmt.Errorf("invalid chunking: size %d overlap %d", size, overlap)
		}
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

// WithMaxNestedDepth sets how many archive levels below the top one
// are descended into.
func WithMaxNestedDepth(depth int) Option {
	return func(p *Pipeline) error {
		p.maxDepth = depth
		return nil
	}
}

// WithArchiveLimits overrides the archive safety limits.
func WithArchiveLimits(limits archive.Limits) Option {
	return func(p *Pipeline) error {
		p.limits = limits
		return nil
	}
}

// NewPipeline creates an ingestion pipeline writing to the given store.
func NewPipeline(store vectorstore.Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	filePool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	splitPool, err := ants.NewPool(poolSize)
	if err != nil {
		filePool.Release()
		return nil, err
	}

	p := &Pipeline{
		store:         store,
		filePool:      filePool,
		splitPool:     splitPool,
		maxUploadSize: DefaultMaxUploadSize,
		chunkSize:     DefaultChunkSize,
		chunkOverlap:  DefaultChunkOverlap,
		maxDepth:      archive.DefaultMaxNestedDepth,
		limits:        archive.DefaultLimits(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.loader = loader.New(loader.WithLogger(p.logger))
	p.extractor = archive.NewExtractor(
		archive.WithMaxNestedDepth(p.maxDepth),
		archive.WithValidator(archive.NewValidator(p.limits, p.logger)),
		archive.WithDocumentFilter(loader.IsSupportedDocument),
		archive.WithLogger(p.logger),
	)
	p.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.chunkSize),
		textsplitter.WithChunkOverlap(p.chunkOverlap),
		textsplitter.WithSeparators(chunkSeparators),
	)
	return p, nil
}

// ProcessUpload spools the reader to a temporary file and processes it.
// The extension check happens before any byte is read; the size limit
// is enforced while spooling. The spool directory is always removed.
func (p *Pipeline) ProcessUpload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	if err := CheckUpload(filename, -1, p.maxUploadSize); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "lectern-upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating spool dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dest := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, p.maxUploadSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("spooling upload: %w", err)
	}
	if written > p.maxUploadSize {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w",
			filename, p.maxUploadSize, core.ErrUploadTooLarge)
	}

	return p.ProcessFile(ctx, dest)
}

// ProcessFile ingests a single document or archive from disk.
// Per-file failures inside an archive are recorded on the result;
// the returned error is reserved for the file itself failing outright.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	res := &Result{FileType: fileType(path)}

	var err error
	switch {
	case archive.IsArchive(path):
		err = p.processArchive(ctx, path, res)
	case loader.IsSupportedDocument(path):
		err = p.processDocument(ctx, path, nil, res)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), core.ErrUnsupportedFileType)
	}

	capErrors(&res.ProcessingStats)
	p.logger.Info("ingestion finished",
		"file", filepath.Base(path),
		"type", res.FileType,
		"chunks_added", res.ChunksAdded,
		"processed", res.FilesProcessed,
		"failed", res.FilesFailed,
		"skipped", res.FilesSkipped)
	return res, err
}

// ProcessDirectory ingests every supported file directly under dir.
// Files run concurrently on the worker pool; per-file outcomes land in
// the merged result and do not fail the directory as a whole.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	res := &Result{FileType: "directory"}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedUpload(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		wg.Add(1)
		task := func() {
			defer wg.Done()
			sub, subErr := p.ProcessFile(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			if sub != nil {
				res.ChunksAdded += sub.ChunksAdded
				res.ProcessingStats.Merge(&sub.ProcessingStats)
			} else if subErr != nil {
				res.FilesFailed++
				res.RecordError("%s: %v", entry.Name(), subErr)
			}
		}
		if submitErr := p.filePool.Submit(task); submitErr != nil {
			task()
		}
	}
	wg.Wait()

	capErrors(&res.ProcessingStats)
	return res, nil
}

// Release frees the worker pools. The pipeline must not be used after.
func (p *Pipeline) Release() {
	if p.filePool != nil {
		p.filePool.Release()
	}
	if p.splitPool != nil {
		p.splitPool.Release()
	}
}

func (p *Pipeline) processDocument(ctx context.Context, path string, provenance core.ProvenanceChain, res *Result) error {
	chunks, err := p.loadAndSplit(ctx, path, provenance)
	if err != nil {
		res.FilesFailed++
		res.RecordError("%s: %v", filepath.Base(path), err)
		return err
	}

	added, err := p.storeChunks(ctx, chunks)
	res.ChunksAdded += added
	if err != nil {
		res.FilesFailed++
		res.RecordError("%s: %v", filepath.Base(path), err)
		return err
	}

	res.RecordProcessed(filepath.Base(path), len(chunks), provenance)
	return nil
}

func (p *Pipeline) processArchive(ctx context.Context, path string, res *Result) error {
	var fatal error
	visit := func(f archive.DiscoveredFile) error {
		chunks, err := p.loadAndSplit(ctx, f.Path, f.Provenance)
		if err != nil {
			return err
		}
		added, err := p.storeChunks(ctx, chunks)
		res.ChunksAdded += added
		if err != nil {
			// A store failure is systemic, not a bad file. Stop the walk.
			fatal = err
			return archive.ErrAbortWalk
		}
		res.RecordProcessed(filepath.Base(f.Path), len(chunks), f.Provenance)
		return nil
	}

	err := p.extractor.Extract(ctx, path, visit, &res.ProcessingStats)
	if fatal != nil {
		res.RecordError("%s: %v", filepath.Base(path), fatal)
		return fatal
	}
	if err != nil {
		res.FilesFailed++
		res.RecordError("%s: %v", filepath.Base(path), err)
		return err
	}
	return nil
}

// loadAndSplit loads a document and splits its text into store-sized
// chunks. Splitting runs on the split pool, one job per loaded section.
func (p *Pipeline) loadAndSplit(ctx context.Context, path string, provenance core.ProvenanceChain) ([]core.Chunk, error) {
	loaded, err := p.loader.Load(ctx, path, provenance)
	if err != nil {
		return nil, err
	}

	results := make([][]core.Chunk, len(loaded))
	errs := make([]error, len(loaded))
	var wg sync.WaitGroup

	for i, section := range loaded {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			pieces, splitErr := p.splitter.SplitText(section.Text)
			if splitErr != nil {
				errs[i] = splitErr
				return
			}
			out := make([]core.Chunk, 0, len(pieces))
			for _, piece := range pieces {
				piece = strings.TrimSpace(piece)
				if piece == "" {
					continue
				}
				out = append(out, core.Chunk{Text: piece, Metadata: section.Metadata})
			}
			results[i] = out
		}
		if submitErr := p.splitPool.Submit(task); submitErr != nil {
			task()
		}
	}
	wg.Wait()

	var chunks []core.Chunk
	for i, out := range results {
		if errs[i] != nil {
			return nil, &core.LoaderError{Path: path, Err: errs[i]}
		}
		chunks = append(chunks, out...)
	}
	return chunks, nil
}

// storeChunks writes chunks in fixed-size batches, each batch only
// after the previous one succeeded.
func (p *Pipeline) storeChunks(ctx context.Context, chunks []core.Chunk) (int, error) {
	written := 0
	for start := 0; start < len(chunks); start += storeBatchSize {
		end := min(start+storeBatchSize, len(chunks))
		added, err := p.store.Add(ctx, chunks[start:end])
		written += added
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// fileType reports the lowercase extension, keeping compound archive
// extensions whole.
func fileType(path string) string {
	lower := strings.ToLower(filepath.Base(path))
	for _, compound := range archive.CompoundExtensions {
		if strings.HasSuffix(lower, compound) {
			return compound
		}
	}
	return filepath.Ext(lower)
}

// capErrors keeps the error list readable when an archive fails en
// masse.
func capErrors(stats *core.ProcessingStats) {
	if len(stats.Errors) <= maxReportedErrors {
		return
	}
	extra := len(stats.Errors) - maxReportedErrors
	stats.Errors = append(stats.Errors[:maxReportedErrors],
		fmt.Sprintf("and %d more errors", extra))
}
