// Package adapter provides the external service boundaries of the memory
// pipeline: text generation, embedding, and transcript storage. Backends
// are selected once at startup and injected into the pipeline; nothing in
// the core branches on which implementation it received.
package adapter

import "context"

// LLM is a single request/response text generation oracle. The output is
// unstructured text, usually best interpreted as JSON; callers must treat
// a failed call as an expected outcome, not an exceptional one.
type LLM interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// Embedder converts text into a fixed-dimension vector. Dimension reports
// the dimensionality every successful Embed call returns; the vector store
// collection is provisioned against it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
