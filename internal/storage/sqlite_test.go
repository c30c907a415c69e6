package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kensaku-io/kensaku/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, unchanged, err := store.UpsertFile(ctx, "/docs/a.pdf", "abc", 100, 11)
	if err != nil {
		t.Fatal(err)
	}
	if unchanged {
		t.Error("first sighting should not report unchanged")
	}

	// Same triple: same identity, unchanged.
	id2, unchanged, err := store.UpsertFile(ctx, "/docs/a.pdf", "abc", 100, 11)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Errorf("identity changed on re-upsert: %d vs %d", id2, id)
	}
	if !unchanged {
		t.Error("matching fingerprint should report unchanged")
	}

	// Any field differing forces an update in place.
	for name, upsert := range map[string]func() (int64, bool, error){
		"hash":  func() (int64, bool, error) { return store.UpsertFile(ctx, "/docs/a.pdf", "def", 100, 11) },
		"mtime": func() (int64, bool, error) { return store.UpsertFile(ctx, "/docs/a.pdf", "def", 200, 11) },
		"size":  func() (int64, bool, error) { return store.UpsertFile(ctx, "/docs/a.pdf", "def", 200, 12) },
	} {
		id3, unchanged, err := upsert()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if id3 != id {
			t.Errorf("%s: identity changed on update: %d vs %d", name, id3, id)
		}
		if unchanged {
			t.Errorf("%s: differing fingerprint should not report unchanged", name)
		}
	}
}

func TestReplaceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, _, err := store.UpsertFile(ctx, "/docs/a.txt", "v1", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	has, err := store.HasChunks(ctx, fileID)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("new file should have no chunks")
	}

	first := []models.Chunk{
		{PageNum: 1, ChunkIndex: 0, Text: "the quick brown fox", Embedding: []float32{1, 0}},
		{PageNum: 1, ChunkIndex: 1, Text: "jumps over the lazy dog", Embedding: []float32{0, 1}},
	}
	if err := store.ReplaceChunks(ctx, fileID, first); err != nil {
		t.Fatal(err)
	}
	has, _ = store.HasChunks(ctx, fileID)
	if !has {
		t.Error("chunks should exist after replace")
	}

	hits, err := store.LexicalSearch(ctx, "fox", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for fox, got %d", len(hits))
	}
	if hits[0].Path != "/docs/a.txt" || hits[0].PageNum != 1 {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if hits[0].Score > 0 {
		t.Errorf("bm25 score should be <= 0 for a match, got %f", hits[0].Score)
	}

	// Replacement removes every trace of the old set, lexical index included.
	second := []models.Chunk{{PageNum: 1, ChunkIndex: 0, Text: "entirely new content", Embedding: []float32{1, 1}}}
	if err := store.ReplaceChunks(ctx, fileID, second); err != nil {
		t.Fatal(err)
	}
	hits, err = store.LexicalSearch(ctx, "fox", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("stale lexical entries after replace: %+v", hits)
	}
	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chunks != 1 {
		t.Errorf("expected 1 chunk after replace, got %d", st.Chunks)
	}

	vectors, err := store.AllChunkVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if vectors[0].Vector[0] != 1 || vectors[0].Vector[1] != 1 {
		t.Errorf("unexpected vector: %v", vectors[0].Vector)
	}
}

func TestReplaceChunks_EmptySet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, _, err := store.UpsertFile(ctx, "/docs/empty.pdf", "v1", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChunks(ctx, fileID, []models.Chunk{
		{PageNum: 1, ChunkIndex: 0, Text: "something"},
	}); err != nil {
		t.Fatal(err)
	}
	// A file can legitimately end up with zero chunks (no extractable text).
	if err := store.ReplaceChunks(ctx, fileID, nil); err != nil {
		t.Fatal(err)
	}
	has, err := store.HasChunks(ctx, fileID)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("expected no chunks after replacing with empty set")
	}
}

func TestChunksByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, _, _ := store.UpsertFile(ctx, "/docs/b.txt", "v1", 1, 1)
	if err := store.ReplaceChunks(ctx, fileID, []models.Chunk{
		{PageNum: 2, ChunkIndex: 0, Text: "page two text"},
	}); err != nil {
		t.Fatal(err)
	}
	hits, err := store.LexicalSearch(ctx, "page", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatal("expected one hit")
	}
	infos, err := store.ChunksByID(ctx, []int64{hits[0].ChunkID, 99999})
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 info, got %d", len(infos))
	}
	info := infos[hits[0].ChunkID]
	if info.PageNum != 2 || info.Path != "/docs/b.txt" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestDeleteFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, _, _ := store.UpsertFile(ctx, "/docs/c.txt", "v1", 1, 1)
	_ = store.ReplaceChunks(ctx, fileID, []models.Chunk{
		{PageNum: 1, ChunkIndex: 0, Text: "doomed content"},
	})
	if err := store.DeleteFile(ctx, "/docs/c.txt"); err != nil {
		t.Fatal(err)
	}
	hits, err := store.LexicalSearch(ctx, "doomed", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Error("lexical entries should be gone after DeleteFile")
	}
	st, _ := store.Stats(ctx)
	if st.Files != 0 || st.Chunks != 0 {
		t.Errorf("expected empty store, got %+v", st)
	}
	// Unknown path is a no-op.
	if err := store.DeleteFile(ctx, "/docs/never-existed"); err != nil {
		t.Fatal(err)
	}
}

func TestLexicalSearch_EmptyCorpus(t *testing.T) {
	store := newTestStore(t)
	hits, err := store.LexicalSearch(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}
