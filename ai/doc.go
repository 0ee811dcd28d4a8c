// Package ai defines the contracts for external AI services: text
// embedding and chat completion. The retrieval and ingestion components
// depend only on these interfaces, never on a concrete provider, which
// keeps them testable with the ai/mock doubles.
package ai
