package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/poiesic/lectern/core"
)

const (
	// DefaultMaxArchiveSize bounds the archive's own on-disk size.
	DefaultMaxArchiveSize = 500 * 1024 * 1024
	// DefaultMaxMembers bounds the member count regardless of compression.
	DefaultMaxMembers = 1000
	// DefaultMaxCompressionRatio bounds declared uncompressed bytes per
	// on-disk byte (decompression bomb defense).
	DefaultMaxCompressionRatio = 100.0
)

var drivePrefixPattern = regexp.MustCompile(`^[a-zA-Z]:`)

// Limits configures the validator's resource ceilings.
type Limits struct {
	MaxArchiveSize      int64
	MaxMembers          int
	MaxCompressionRatio float64
}

// DefaultLimits returns the default validation ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxArchiveSize:      DefaultMaxArchiveSize,
		MaxMembers:          DefaultMaxMembers,
		MaxCompressionRatio: DefaultMaxCompressionRatio,
	}
}

// Validator inspects an archive's member list before any bytes are
// extracted and rejects unsafe or resource-abusive archives. A single
// violation rejects the entire archive; sibling files in the same ingestion
// job are unaffected.
type Validator struct {
	limits Limits
	logger *slog.Logger
}

// NewValidator creates a validator with the given limits. Zero-valued
// limits fall back to the defaults.
func NewValidator(limits Limits, logger *slog.Logger) *Validator {
	if limits.MaxArchiveSize <= 0 {
		limits.MaxArchiveSize = DefaultMaxArchiveSize
	}
	if limits.MaxMembers <= 0 {
		limits.MaxMembers = DefaultMaxMembers
	}
	if limits.MaxCompressionRatio <= 0 {
		limits.MaxCompressionRatio = DefaultMaxCompressionRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		limits: limits,
		logger: logger.With("component", "archive-validator"),
	}
}

// Validate inspects the archive at path and returns its members if every
// safety check passes. Rejections are *core.ValidationError; a corrupt or
// unreadable container is *core.ExtractionError.
func (v *Validator) Validate(archivePath string) ([]Member, error) {
	name := filepath.Base(archivePath)

	format := DetectFormat(archivePath)
	if format == FormatUnknown {
		return nil, &core.ExtractionError{
			Archive: name,
			Err:     fmt.Errorf("%w: %s", core.ErrUnsupportedFileType, name),
		}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, &core.ExtractionError{Archive: name, Err: err}
	}
	if info.Size() > v.limits.MaxArchiveSize {
		return nil, &core.ValidationError{
			Archive: name,
			Reason:  core.ReasonArchiveTooLarge,
			Detail:  fmt.Sprintf("%d bytes exceeds limit %d", info.Size(), v.limits.MaxArchiveSize),
		}
	}

	members, err := listMembers(archivePath, format)
	if err != nil {
		return nil, &core.ExtractionError{Archive: name, Err: err}
	}

	if len(members) > v.limits.MaxMembers {
		return nil, &core.ValidationError{
			Archive: name,
			Reason:  core.ReasonTooManyMembers,
			Detail:  fmt.Sprintf("%d members exceeds limit %d", len(members), v.limits.MaxMembers),
		}
	}

	var totalSize int64
	for _, m := range members {
		totalSize += m.Size
	}
	if info.Size() > 0 {
		ratio := float64(totalSize) / float64(info.Size())
		if ratio > v.limits.MaxCompressionRatio {
			return nil, &core.ValidationError{
				Archive: name,
				Reason:  core.ReasonCompressionRatio,
				Detail:  fmt.Sprintf("declared %d bytes is %.0fx the archive size", totalSize, ratio),
			}
		}
	}

	for _, m := range members {
		if !isSafePath(m.Path) {
			return nil, &core.ValidationError{
				Archive: name,
				Reason:  core.ReasonPathTraversal,
				Detail:  m.Path,
			}
		}
		switch m.Type {
		case MemberFile, MemberDir:
		default:
			return nil, &core.ValidationError{
				Archive: name,
				Reason:  core.ReasonUnsafeMemberType,
				Detail:  m.Path,
			}
		}
	}

	v.logger.Debug("archive validated", "archive", name, "members", len(members))
	return members, nil
}

// isSafePath rejects member paths that are absolute, escape the extraction
// root via parent segments, or begin with a drive prefix (zip-slip).
func isSafePath(memberPath string) bool {
	if memberPath == "" {
		return false
	}
	normalized := strings.ReplaceAll(memberPath, `\`, "/")
	if strings.HasPrefix(normalized, "/") || drivePrefixPattern.MatchString(normalized) {
		return false
	}
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return false
		}
	}
	// Catch sequences that only resolve to an escape after cleaning,
	// e.g. "a/../../b".
	cleaned := path.Clean(normalized)
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

// listMembers reads the container's member table without extracting bytes.
func listMembers(archivePath string, format Format) ([]Member, error) {
	switch format {
	case FormatZip:
		return listZipMembers(archivePath)
	case FormatTar, FormatTarGz:
		return listTarMembers(archivePath, format == FormatTarGz)
	default:
		return nil, fmt.Errorf("unrecognized archive format")
	}
}

func listZipMembers(archivePath string) ([]Member, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	defer reader.Close()

	members := make([]Member, 0, len(reader.File))
	for _, f := range reader.File {
		mode := f.Mode()
		var mtype MemberType
		switch {
		case mode.IsDir():
			mtype = MemberDir
		case mode&os.ModeSymlink != 0:
			mtype = MemberSymlink
		case mode&(os.ModeDevice|os.ModeNamedPipe|os.ModeSocket) != 0:
			mtype = MemberDevice
		case mode.IsRegular():
			mtype = MemberFile
		default:
			mtype = MemberOther
		}
		members = append(members, Member{
			Path:           f.Name,
			Size:           int64(f.UncompressedSize64),
			CompressedSize: int64(f.CompressedSize64),
			Type:           mtype,
		})
	}
	return members, nil
}

func listTarMembers(archivePath string, gzipped bool) ([]Member, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening tar: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var members []Member
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar member table: %w", err)
		}

		var mtype MemberType
		switch hdr.Typeflag {
		case tar.TypeXGlobalHeader:
			// pax metadata, not a real member
			continue
		case tar.TypeReg:
			mtype = MemberFile
		case tar.TypeDir:
			mtype = MemberDir
		case tar.TypeSymlink:
			mtype = MemberSymlink
		case tar.TypeLink:
			mtype = MemberHardlink
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			mtype = MemberDevice
		default:
			mtype = MemberOther
		}
		members = append(members, Member{
			Path: hdr.Name,
			Size: hdr.Size,
			Type: mtype,
		})
	}
	return members, nil
}
