package ingest

import "errors"

var (
	// ErrStoreRequired is returned when a pipeline is created without a
	// vector store.
	ErrStoreRequired = errors.New("vector store is required")
)
