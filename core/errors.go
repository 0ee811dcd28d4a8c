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


package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFileType indicates an upload whose extension is neither
	// a supported document nor a recognized archive format.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrUploadTooLarge indicates an upload exceeding the boundary's size limit.
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")

	// ErrEmptyQuestion indicates an empty or whitespace-only question.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// ValidationReason identifies which safety check rejected an archive.
type ValidationReason string

const (
	// ReasonArchiveTooLarge means the archive's own size exceeds the ceiling.
	ReasonArchiveTooLarge ValidationReason = "archive too large"
	// ReasonTooManyMembers means the member count exceeds the ceiling.
	ReasonTooManyMembers ValidationReason = "too many members"
	// ReasonCompressionRatio means the declared uncompressed size is
	// disproportionate to the on-disk size (decompression bomb).
	ReasonCompressionRatio ValidationReason = "decompression ratio exceeded"
	// ReasonPathTraversal means a member path is absolute, escapes the
	// extraction root, or carries a drive prefix (zip-slip).
	ReasonPathTraversal ValidationReason = "unsafe member path"
	// ReasonUnsafeMemberType means a member is a symlink, hardlink, or
	// device node.
	ReasonUnsafeMemberType ValidationReason = "unsafe member type"
)

// ValidationError reports an untrusted archive rejected before extraction.
// A single violation rejects the entire archive.
type ValidationError struct {
	Archive string
	Reason  ValidationReason
	Detail  string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("archive %s rejected: %s", e.Archive, e.Reason)
	}
	return fmt.Sprintf("archive %s rejected: %s: %s", e.Archive, e.Reason, e.Detail)
}

// ExtractionError reports a corrupt archive or an I/O failure during
// extraction of an already validated archive.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// LoaderError reports unsupported or corrupt document content.
type LoaderError struct {
	Path string
	Err  error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// ProviderError reports a failed embedding, completion, or vector-store
// call. Retryable is true for transient conditions such as rate limits.
type ProviderError struct {
	Op         string
	StatusCode int // 0 when no HTTP status applies
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// ConfigError reports missing credentials or collection misconfiguration.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Detail)
}
