package rerank

import (
	"context"
	"strings"
)

// MockReranker is a deterministic reranker for tests. It scores each
// candidate by the number of query terms it contains.
type MockReranker struct{}

// NewMockReranker returns a reranker usable without a cross-encoder service.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Score counts query term occurrences per text.
func (m *MockReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	terms := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		for _, term := range terms {
			scores[i] += float64(strings.Count(lower, term))
		}
	}
	return scores, nil
}
