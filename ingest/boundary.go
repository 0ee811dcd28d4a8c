package ingest

import (
	"fmt"

	"github.com/poiesic/lectern/archive"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/loader"
)

// DefaultMaxUploadSize is the ceiling for a single uploaded file.
const DefaultMaxUploadSize = 50 << 20 // 50 MB

// IsSupportedUpload reports whether the file name is a document or an
// archive the pipeline can process. Compound archive extensions such
// as .tar.gz are recognized.
func IsSupportedUpload(filename string) bool {
	return loader.IsSupportedDocument(filename) || archive.IsArchive(filename)
}

// CheckUpload rejects unsupported or oversized uploads before any
// further work. size may be -1 when unknown; the size check then
// happens while spooling.
func CheckUpload(filename string, size, maxSize int64) error {
	if !IsSupportedUpload(filename) {
		return fmt.Errorf("%s: %w", filename, core.ErrUnsupportedFileType)
	}
	if size > maxSize {
		return fmt.Errorf("%s is %d bytes (limit %d): %w",
			filename, size, maxSize, core.ErrUploadTooLarge)
	}
	return nil
}
