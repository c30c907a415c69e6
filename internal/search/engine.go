// Package search provides the hybrid retrieval engine: lexical ranking
// fused with vector similarity, with an optional reranking overlay.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/rerank"
	"github.com/kensaku-io/kensaku/internal/storage"
)

// Request is one retrieval call. Hybrid enables vector fusion; Rerank
// enables the cross-encoder overlay.
type Request struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Hybrid bool   `json:"hybrid"`
	Rerank bool   `json:"rerank"`
}

// Engine answers queries against the store using lexical search, optional
// brute-force vector similarity, score fusion, and optional reranking.
// Collaborators are injected once at construction; there is no hidden
// global state.
type Engine struct {
	store    storage.Store
	embedder embedding.Embedder
	reranker rerank.Reranker
	cfg      *config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query debug events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(
	store storage.Store,
	embedder embedding.Embedder,
	reranker rerank.Reranker,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the top-K ranked chunks for the query.
//
// Scores in the hybrid path are per-query max-normalized, so they are not
// comparable across queries. In the lexical-only path Score carries the raw
// BM25 rank (lower = more relevant), the store's native convention.
func (e *Engine) Search(ctx context.Context, req Request) ([]models.SearchResult, error) {
	// Validation happens before any store access.
	if strings.TrimSpace(req.Query) == "" {
		return nil, models.ErrEmptyQuery
	}
	if req.K <= 0 || req.K > e.cfg.MaxK {
		return nil, fmt.Errorf("%w: k=%d (max %d)", models.ErrInvalidLimit, req.K, e.cfg.MaxK)
	}

	hits, err := e.lexicalCandidates(ctx, req.Query, req.K*e.cfg.CandidateMultiplier)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("lexical candidates",
		zap.String("query", req.Query), zap.Int("count", len(hits)))

	if !req.Hybrid && !req.Rerank {
		if len(hits) > req.K {
			hits = hits[:req.K]
		}
		results := make([]models.SearchResult, len(hits))
		for i, h := range hits {
			results[i] = models.SearchResult{
				ChunkID: h.ChunkID,
				Path:    h.Path,
				PageNum: h.PageNum,
				Text:    h.Text,
				Score:   h.Score,
			}
		}
		return results, nil
	}

	// BM25 ranks lower-is-better (and non-positive for matches), so negate
	// into a positive relevance before max-normalization.
	lexScores := make(map[int64]float64, len(hits))
	for _, h := range hits {
		lexScores[h.ChunkID] = -h.Score
	}

	vecScores := make(map[int64]float64)
	if req.Hybrid {
		vecScores, err = e.vectorCandidates(ctx, req.Query, req.K*e.cfg.CandidateMultiplier)
		if err != nil {
			// The caller asked for hybrid; silently degrading to
			// lexical-only would violate that intent.
			return nil, err
		}
		e.logger.Debug("vector candidates", zap.Int("count", len(vecScores)))
	}

	fused := fuse(lexScores, vecScores, e.cfg.LexicalWeight, e.cfg.VectorWeight)
	window := req.K * e.cfg.RerankMultiplier
	if len(fused) > window {
		fused = fused[:window]
	}

	ids := make([]int64, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}
	infos, err := e.store.ChunksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(fused))
	for _, c := range fused {
		info, ok := infos[c.ChunkID]
		if !ok {
			// The chunk was replaced between scan and fetch; ingestion is
			// running concurrently. Drop it rather than return a torn row.
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:      c.ChunkID,
			Path:         info.Path,
			PageNum:      info.PageNum,
			Text:         info.Text,
			Score:        c.Score,
			LexicalScore: c.LexScore,
			VectorScore:  c.VecScore,
		})
	}

	if req.Rerank && len(results) > 0 {
		if results, err = e.rerankResults(ctx, req.Query, results); err != nil {
			return nil, err
		}
	}
	if len(results) > req.K {
		results = results[:req.K]
	}
	return results, nil
}

// lexicalCandidates builds the match expression and runs the two-tier
// AND-then-OR lookup. The ordering is mandatory: conjunctive first for
// precision, disjunctive only when it returned nothing. A query that
// tokenizes to nothing yields no lexical candidates, by design.
func (e *Engine) lexicalCandidates(ctx context.Context, query string, limit int) ([]models.LexicalHit, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	hits, err := e.store.LexicalSearch(ctx, matchExpr(tokens, true), limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	if len(hits) == 0 && len(tokens) > 1 {
		hits, err = e.store.LexicalSearch(ctx, matchExpr(tokens, false), limit)
		if err != nil {
			return nil, fmt.Errorf("lexical search (disjunctive): %w", err)
		}
	}
	return hits, nil
}

// vectorCandidates embeds the query once and scores it against every stored
// chunk vector (brute force, exact). Returns the top limit scores by cosine
// similarity descending.
func (e *Engine) vectorCandidates(ctx context.Context, query string, limit int) (map[int64]float64, error) {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vectors, err := e.store.AllChunkVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	scored := make([]candidate, 0, len(vectors))
	for _, cv := range vectors {
		scored = append(scored, candidate{
			ChunkID: cv.ChunkID,
			Score:   CosineSimilarity(queryVec, cv.Vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	result := make(map[int64]float64, len(scored))
	for _, c := range scored {
		result[c.ChunkID] = c.Score
	}
	return result, nil
}

// rerankResults scores (query, text) pairs with the cross-encoder and
// reorders by its scores descending. The output is always a permutation
// prefix of the input candidates, never expanded.
func (e *Engine) rerankResults(ctx context.Context, query string, results []models.SearchResult) ([]models.SearchResult, error) {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	scores, err := e.reranker.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(results) {
		return nil, fmt.Errorf("%w: rerank: got %d scores for %d candidates",
			models.ErrCollaborator, len(scores), len(results))
	}
	for i := range results {
		results[i].RerankScore = scores[i]
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RerankScore != results[j].RerankScore {
			return results[i].RerankScore > results[j].RerankScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}
