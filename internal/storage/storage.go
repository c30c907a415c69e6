// Package storage defines the persistence interface for files, chunks, and
// the lexical index, plus its SQLite implementation.
//
// The SQLite implementation uses an FTS5 virtual table, which mattn/go-sqlite3
// only includes under the sqlite_fts5 build tag: build and test with
// -tags sqlite_fts5 (enforced at compile time in fts5_check.go).
package storage

import (
	"context"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Stats summarizes the indexed corpus.
type Stats struct {
	Files  int64 `json:"files"`
	Chunks int64 `json:"chunks"`
}

// Store is the durable, transactional home for files, chunks, and vectors.
// The lexical full-text index is a derived shadow of chunk text maintained
// in lockstep with chunk inserts and deletes; it is never mutated
// independently.
type Store interface {
	// UpsertFile inserts a new file record or updates an existing one in
	// place, returning its identity either way. unchanged is true iff the
	// stored (sha256, modified_ns, size_bytes) triple matched exactly.
	// UpsertFile never touches chunks.
	UpsertFile(ctx context.Context, path, sha256 string, modifiedNs, sizeBytes int64) (fileID int64, unchanged bool, err error)

	// ReplaceChunks transactionally deletes all existing chunks (and their
	// lexical index entries) for fileID, then inserts the new set with
	// vectors. A crash mid-operation leaves either the old or the new chunk
	// set, never a mix.
	ReplaceChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error

	// HasChunks reports whether any chunk exists for fileID.
	HasChunks(ctx context.Context, fileID int64) (bool, error)

	// LexicalSearch runs matchExpr against the full-text index and returns
	// up to limit rows ordered by the native BM25 rank (lower = more
	// relevant).
	LexicalSearch(ctx context.Context, matchExpr string, limit int) ([]models.LexicalHit, error)

	// AllChunkVectors returns every stored chunk vector, for brute-force
	// similarity scans.
	AllChunkVectors(ctx context.Context) ([]models.ChunkVector, error)

	// ChunksByID returns metadata for the given chunk IDs. Missing IDs are
	// absent from the map, not an error.
	ChunksByID(ctx context.Context, ids []int64) (map[int64]models.ChunkInfo, error)

	// DeleteFile removes the file at path with its chunks and lexical
	// entries in one transaction. Unknown paths are a no-op.
	DeleteFile(ctx context.Context, path string) error

	// Stats returns file and chunk counts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
