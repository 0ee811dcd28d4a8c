package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use and must
// truncate over-long inputs before sending them to the provider.
type Embedder interface {
	// EmbedQuery generates an embedding for a search query.
	// Some providers use a dedicated query model distinct from the
	// document model.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple document texts in a
	// batch. The returned slice is in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer generates chat completions. Implementations must be thread-safe
// for concurrent use.
type Completer interface {
	// Complete generates a response to the given messages. A zero
	// temperature or maxTokens falls back to the configured default.
	// Transient failures are retried internally with backoff; exhausted or
	// non-retryable failures surface as *core.ProviderError.
	Complete(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Completion, error)
}

// Provider aggregates the AI services behind a single lifecycle.
// Construction is explicit: a provider is fully connected when New returns,
// never lazily on first use.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Completer returns the chat completion service.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	Close() error
}
