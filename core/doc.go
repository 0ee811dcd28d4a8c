// Package core defines the domain model shared across ingestion and
// retrieval: chunks with their provenance metadata, the per-job processing
// statistics accumulator, source references for citations, and the typed
// error taxonomy.
package core
