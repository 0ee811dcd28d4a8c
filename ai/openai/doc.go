// Package openai provides ai.Provider implementations backed by
// OpenAI-compatible HTTP APIs, including local inference servers such as
// Ollama. Transient failures are retried with exponential backoff;
// non-retryable HTTP errors surface immediately with the status code.
package openai
