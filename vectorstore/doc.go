// Package vectorstore defines the chunk index abstraction and the
// maximal marginal relevance reranker shared by its implementations.
// The qdrant subpackage talks to a Qdrant server over REST; the memory
// subpackage keeps everything in-process for tests and local runs.
package vectorstore
