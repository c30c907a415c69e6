// Package embedding provides the text embedding collaborator contract and clients.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must return
// vectors of a fixed dimensionality; mixing model versions across a corpus
// silently corrupts vector-search quality, so the operator must keep the
// model stable. Constructed once at process start and injected by reference.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
