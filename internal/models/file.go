// Package models defines core data structures for files, chunks, queries, and search results.
package models

// File represents an indexed source file. Path is the unique key; the
// (SHA256, ModifiedNs, SizeBytes) triple is the content fingerprint used
// for change detection.
type File struct {
	ID         int64  `json:"id"`
	Path       string `json:"path"`
	SHA256     string `json:"sha256"`
	ModifiedNs int64  `json:"modified_ns"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Chunk is an overlapping window of normalized page text, the unit of
// indexing and retrieval. ChunkIndex is 0-based and contiguous within a
// (file, page); PageNum is 1-based. Embedding may be nil when the chunk has
// not been embedded.
type Chunk struct {
	ID         int64     `json:"id"`
	FileID     int64     `json:"file_id"`
	PageNum    int       `json:"page_num"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// Page is one page of raw extracted text. Number is 1-based.
type Page struct {
	Number int
	Text   string
}
