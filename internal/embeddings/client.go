// Package embeddings defines the embedding-generation capability consumed by
// the analysis pipeline, plus a deterministic mock for tests.
package embeddings

import "context"

// Client defines the interface for generating text embeddings.
type Client interface {
	// GenerateEmbeddings generates embedding vectors for the given texts,
	// one vector per text in the same order, all with the same fixed
	// dimensionality. Network-bound implementations may fail on quota or
	// transport errors; the caller surfaces that as an analysis error.
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
