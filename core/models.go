package core

import (
	"fmt"
	"strings"
)

// Chunk is a unit of extracted document text, the atom indexed into the
// vector store. A chunk is created once at load time and never mutated.
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}

// ChunkMetadata carries the provenance of a chunk's text.
type ChunkMetadata struct {
	Source        string // full path of the source file at load time
	Filename      string // base name of the source file
	FileHash      string // BLAKE2b content digest, hex encoded
	FileType      string // lowercase extension including the dot, e.g. ".pdf"
	Page          int    // 1-based page number; 0 means the format has no pages
	ArchiveSource string // provenance chain, outermost to innermost, joined with "/"
}

// Key identifies a chunk for deduplication purposes.
func (m ChunkMetadata) Key() string {
	return fmt.Sprintf("%s|%d|%s", m.Filename, m.Page, m.ArchiveSource)
}

// ProvenanceChain is the ordered list of container archive names a file
// passed through before being extracted, outermost first.
type ProvenanceChain []string

// String renders the chain for chunk metadata. A file extracted from a
// single archive yields the bare archive name.
func (p ProvenanceChain) String() string {
	return strings.Join(p, "/")
}

// Push returns a new chain extended with the given archive name.
// The receiver is not modified.
func (p ProvenanceChain) Push(archive string) ProvenanceChain {
	next := make(ProvenanceChain, 0, len(p)+1)
	next = append(next, p...)
	return append(next, archive)
}

// ProcessedFile records a single successfully loaded file within an
// ingestion job.
type ProcessedFile struct {
	Filename    string
	Chunks      int
	ArchivePath string // provenance chain string; empty for direct uploads
}

// ProcessingStats accumulates counters and errors across one ingestion job,
// including every level of recursive archive extraction. The accumulator is
// owned exclusively by the job that created it, so no locking is required.
type ProcessingStats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesFailed    int
	NestedArchives int
	Errors         []string
	ProcessedFiles []ProcessedFile
}

// RecordError appends a human-readable error to the job's error list.
func (s *ProcessingStats) RecordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// RecordProcessed notes a successfully loaded file and its chunk count.
func (s *ProcessingStats) RecordProcessed(filename string, chunks int, provenance ProvenanceChain) {
	s.FilesProcessed++
	s.ProcessedFiles = append(s.ProcessedFiles, ProcessedFile{
		Filename:    filename,
		Chunks:      chunks,
		ArchivePath: provenance.String(),
	})
}

// Merge folds the counters and collected lists of another accumulator into
// this one. Used when a recursive extraction level completes.
func (s *ProcessingStats) Merge(other *ProcessingStats) {
	if other == nil {
		return
	}
	s.FilesProcessed += other.FilesProcessed
	s.FilesSkipped += other.FilesSkipped
	s.FilesFailed += other.FilesFailed
	s.NestedArchives += other.NestedArchives
	s.Errors = append(s.Errors, other.Errors...)
	s.ProcessedFiles = append(s.ProcessedFiles, other.ProcessedFiles...)
}

// SearchHit is a single candidate returned by a vector store query.
// Hits are ephemeral and exist only for the duration of one query.
type SearchHit struct {
	Chunk  Chunk
	Score  float32
	Scored bool      // false when the store returned no score for this point
	Vector []float32 // present only when the query requested vectors
}

// SourceRef is the externally visible summary of a chunk used for answers
// and citations.
type SourceRef struct {
	Filename string
	Page     int // 0 means no page
	Archive  string
	Score    float32
	Scored   bool
}

// SourceRefFromHit builds a citation entry from a search hit.
func SourceRefFromHit(hit SearchHit) SourceRef {
	return SourceRef{
		Filename: hit.Chunk.Metadata.Filename,
		Page:     hit.Chunk.Metadata.Page,
		Archive:  hit.Chunk.Metadata.ArchiveSource,
		Score:    hit.Score,
		Scored:   hit.Scored,
	}
}

// DedupSourceRefs removes duplicate references, keyed by
// (filename, page, archive), preserving first-seen order.
func DedupSourceRefs(refs []SourceRef) []SourceRef {
	type key struct {
		filename string
		page     int
		archive  string
	}
	seen := make(map[key]bool, len(refs))
	out := make([]SourceRef, 0, len(refs))
	for _, ref := range refs {
		k := key{ref.Filename, ref.Page, ref.Archive}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ref)
	}
	return out
}
