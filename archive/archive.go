package archive

import (
	"path/filepath"
	"strings"
)

// Format identifies a supported archive container format.
type Format int

const (
	// FormatUnknown means the name does not carry a recognized archive
	// extension.
	FormatUnknown Format = iota
	// FormatZip is a PKZIP container.
	FormatZip
	// FormatTar is an uncompressed tarball.
	FormatTar
	// FormatTarGz is a gzip-compressed tarball (.tar.gz or .tgz).
	FormatTarGz
)

// Extensions lists the simple archive extensions, lowercase with leading dot.
var Extensions = []string{".zip", ".tar", ".tgz"}

// CompoundExtensions lists two-part archive suffixes. These are matched
// before simple extensions so "a.tar.gz" is not mistaken for ".gz".
var CompoundExtensions = []string{".tar.gz"}

// DetectFormat determines the archive format from a file name alone.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	default:
		return FormatUnknown
	}
}

// IsArchive reports whether the file name carries a recognized archive
// extension.
func IsArchive(name string) bool {
	return DetectFormat(name) != FormatUnknown
}

// junkNames are well-known OS metadata files that carry no document content.
var junkNames = map[string]bool{
	"thumbs.db":   true,
	"desktop.ini": true,
	".ds_store":   true,
}

// isJunkPath reports whether an extracted path is OS metadata rather than
// content: hidden dot-prefixed entries, macOS resource forks, and known
// junk filenames.
func isJunkPath(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		if junkNames[lower] || lower == "__macosx" {
			return true
		}
		if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "~$") {
			return true
		}
	}
	return false
}

// MemberType classifies an archive member.
type MemberType int

const (
	// MemberFile is a regular file.
	MemberFile MemberType = iota
	// MemberDir is a directory.
	MemberDir
	// MemberSymlink is a symbolic link.
	MemberSymlink
	// MemberHardlink is a hard link.
	MemberHardlink
	// MemberDevice is a device node, FIFO, or socket.
	MemberDevice
	// MemberOther is any remaining member kind.
	MemberOther
)

// Member describes a single archive entry as declared by the container,
// before any bytes are extracted.
type Member struct {
	Path           string
	Size           int64 // declared uncompressed size
	CompressedSize int64 // 0 when the format does not expose it
	Type           MemberType
}
