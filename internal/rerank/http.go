package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kensaku-io/kensaku/internal/models"
)

// HTTPReranker calls a cross-encoder service over HTTP. The wire format
// follows the common rerank API shape (TEI, Cohere-style): POST a query and
// a document batch, receive one relevance score per document.
type HTTPReranker struct {
	baseURL string
	model   string
	client  *http.Client
}

// HTTPConfig configures an HTTPReranker.
type HTTPConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewHTTPReranker creates a reranker client. Timeout defaults to 30s.
func NewHTTPReranker(cfg HTTPConfig) (*HTTPReranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reranker base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPReranker{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score returns one relevance score per text, in input order. A request
// failure or malformed response is surfaced as a collaborator error.
func (r *HTTPReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: rerank: %v", models.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: rerank: status %d: %s", models.ErrCollaborator, resp.StatusCode, data)
	}
	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: rerank: decode response: %v", models.ErrCollaborator, err)
	}
	if len(parsed.Results) != len(texts) {
		return nil, fmt.Errorf("%w: rerank: got %d scores for %d texts",
			models.ErrCollaborator, len(parsed.Results), len(texts))
	}
	scores := make([]float64, len(texts))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(texts) {
			return nil, fmt.Errorf("%w: rerank: index %d out of range", models.ErrCollaborator, res.Index)
		}
		scores[res.Index] = res.Score
	}
	return scores, nil
}
