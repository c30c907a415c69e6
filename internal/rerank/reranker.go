// Package rerank provides the cross-encoder reranking collaborator contract and clients.
package rerank

import "context"

// Reranker scores (query, candidate text) pairs. Higher scores mean more
// relevant. Implementations must accept batches; scores are returned in the
// same order as texts.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}
