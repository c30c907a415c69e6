package models

// LexicalHit is a row returned by the store's full-text search. Score is the
// native BM25 rank: lower means more relevant (SQLite convention).
type LexicalHit struct {
	ChunkID int64   `json:"chunk_id"`
	Path    string  `json:"path"`
	PageNum int     `json:"page_num"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// ChunkVector pairs a chunk ID with its stored embedding, for brute-force
// vector scans.
type ChunkVector struct {
	ChunkID int64
	Vector  []float32
}

// ChunkInfo is chunk metadata fetched for fused candidates.
type ChunkInfo struct {
	ChunkID int64
	Path    string
	PageNum int
	Text    string
}

// SearchResult is a single ranked hit. Score is the hybrid (or lexical-only)
// score; LexicalScore and VectorScore are the per-side normalized
// contributions; RerankScore is set only when reranking ran.
type SearchResult struct {
	ChunkID      int64   `json:"chunk_id"`
	Path         string  `json:"path"`
	PageNum      int     `json:"page_num"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	RerankScore  float64 `json:"rerank_score,omitempty"`
}
