// Package mock provides test doubles for the ai package interfaces.
// The embedder produces deterministic unit vectors from text hashes, so
// similarity relationships are stable across test runs. Behavior can be
// overridden per-test via function fields.
package mock
