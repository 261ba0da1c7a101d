// Package embeddings defines the Provider interface for text-embedding
// backends used to rank tools by semantic similarity.
//
// Three implementations ship with toolhub: a remote OpenAI-compatible service
// (package openai), a local Ollama model (package ollama) and a deterministic
// hashed bag-of-words fallback (package hashed) that needs no model at all.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to dense float32 vectors.
//
// Every vector returned by one Provider has length Dimensions(). Vectors from
// different providers live in different spaces and must never be compared;
// ModelID is used as the namespace key wherever vectors are cached or stored.
type Provider interface {
	// Embed computes the vector for a single text. The text is passed through
	// verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for texts in one call. result[i] belongs to
	// texts[i]; on error the whole result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length.
	Dimensions() int

	// ModelID identifies the model, e.g. "text-embedding-3-small" or
	// "hashed-xxh64-256".
	ModelID() string
}
