package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver; FTS5 needs -tags sqlite_fts5

	"github.com/kensaku-io/kensaku/internal/models"
)

// busyTimeoutMs is how long a writer waits on lock contention before
// failing. Workers block-and-retry inside SQLite rather than erroring
// immediately.
const busyTimeoutMs = 30000

// SQLiteStore implements Store on SQLite with an FTS5 lexical index. WAL
// mode keeps readers unblocked while ingestion workers write; each worker
// gets its own connection from the database/sql pool.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not
// exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		sha256 TEXT NOT NULL,
		modified_ns INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id),
		page_num INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text, content='chunks', content_rowid='id'
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertFile inserts or updates the file record for path. It reports
// unchanged=true when the stored fingerprint triple matches exactly. Chunks
// are never touched here; replacement is ReplaceChunks' job.
func (s *SQLiteStore) UpsertFile(ctx context.Context, path, sha256 string, modifiedNs, sizeBytes int64) (int64, bool, error) {
	var (
		id         int64
		storedSHA  string
		storedNs   int64
		storedSize int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sha256, modified_ns, size_bytes FROM files WHERE path = ?`, path,
	).Scan(&id, &storedSHA, &storedNs, &storedSize)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO files(path, sha256, modified_ns, size_bytes) VALUES(?,?,?,?)`,
			path, sha256, modifiedNs, sizeBytes,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert file: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert file id: %w", err)
		}
		return id, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("select file: %w", err)
	}

	if storedSHA == sha256 && storedNs == modifiedNs && storedSize == sizeBytes {
		return id, true, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE files SET sha256 = ?, modified_ns = ?, size_bytes = ? WHERE id = ?`,
		sha256, modifiedNs, sizeBytes, id,
	); err != nil {
		return 0, false, fmt.Errorf("update file: %w", err)
	}
	return id, false, nil
}

// ReplaceChunks swaps the full chunk set of a file in one transaction.
// Lexical index rows are deleted before their chunks; inserts mirror each
// chunk row into the FTS table. Rollback on any failure leaves the prior
// state intact.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, fileID int64, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback()

	// FTS rows reference chunk rowids, so they go first.
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("select old chunks: %w", err)
	}
	var oldIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan old chunk id: %w", err)
		}
		oldIDs = append(oldIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate old chunks: %w", err)
	}
	rows.Close()

	for _, id := range oldIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("delete fts row: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	insertChunk, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(file_id, page_num, chunk_index, text, embedding) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()
	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts(rowid, text) VALUES(?,?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer insertFTS.Close()

	for _, ch := range chunks {
		var blob any
		if len(ch.Embedding) > 0 {
			blob = MarshalVector(ch.Embedding)
		}
		res, err := insertChunk.ExecContext(ctx, fileID, ch.PageNum, ch.ChunkIndex, ch.Text, blob)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert chunk id: %w", err)
		}
		if _, err := insertFTS.ExecContext(ctx, chunkID, ch.Text); err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
	}
	return tx.Commit()
}

// HasChunks reports whether any chunk exists for fileID.
func (s *SQLiteStore) HasChunks(ctx context.Context, fileID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE file_id = ? LIMIT 1`, fileID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check chunks: %w", err)
	}
	return true, nil
}

// LexicalSearch runs an FTS5 MATCH expression and returns rows ordered by
// bm25 ascending (lower = more relevant, SQLite's convention).
func (s *SQLiteStore) LexicalSearch(ctx context.Context, matchExpr string, limit int) ([]models.LexicalHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunks.id, chunks.text, chunks.page_num, files.path, bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks ON chunks_fts.rowid = chunks.id
		JOIN files ON chunks.file_id = files.id
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []models.LexicalHit
	for rows.Next() {
		var h models.LexicalHit
		if err := rows.Scan(&h.ChunkID, &h.Text, &h.PageNum, &h.Path, &h.Score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// AllChunkVectors scans every chunk with a stored embedding.
func (s *SQLiteStore) AllChunkVectors(ctx context.Context) ([]models.ChunkVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var vectors []models.ChunkVector
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		vec, err := UnmarshalVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", id, err)
		}
		vectors = append(vectors, models.ChunkVector{ChunkID: id, Vector: vec})
	}
	return vectors, rows.Err()
}

// ChunksByID returns metadata for the given chunk IDs.
func (s *SQLiteStore) ChunksByID(ctx context.Context, ids []int64) (map[int64]models.ChunkInfo, error) {
	result := make(map[int64]models.ChunkInfo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunks.id, files.path, chunks.page_num, chunks.text
		FROM chunks JOIN files ON chunks.file_id = files.id
		WHERE chunks.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var info models.ChunkInfo
		if err := rows.Scan(&info.ChunkID, &info.Path, &info.PageNum, &info.Text); err != nil {
			return nil, fmt.Errorf("scan chunk info: %w", err)
		}
		result[info.ChunkID] = info
	}
	return result, rows.Err()
}

// DeleteFile removes a file record, its chunks, and their lexical entries
// in one transaction. Unknown paths are a no-op.
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete file: %w", err)
	}
	defer tx.Rollback()

	var fileID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select file: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE file_id = ?)`,
		fileID); err != nil {
		return fmt.Errorf("delete fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return tx.Commit()
}

// Stats returns file and chunk counts.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&st.Files); err != nil {
		return st, fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return st, fmt.Errorf("count chunks: %w", err)
	}
	return st, nil
}

// Close closes the database connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
