package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/answer"
	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/rerank"
	"github.com/kensaku-io/kensaku/internal/search"
	"github.com/kensaku-io/kensaku/internal/storage"
)

type staticGenerator struct {
	reply string
}

func (g *staticGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return g.reply, nil
}

// newTestServer wires a full server over a temp database and docs root.
func newTestServer(t *testing.T, assembler *answer.Assembler) *Server {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docs, 0755); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "index.db")
	cfg.Ingest.Root = docs
	cfg.Ingest.Extensions = []string{".txt"}

	embedder := embedding.NewMockEmbedder(8)
	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}
	pipeline := ingest.NewPipeline(store, embedder, extract.NewExtractor(), chunker, cfg.Ingest.Extensions)
	engine := search.NewEngine(store, embedder, rerank.NewMockReranker(), &cfg.Search)
	return NewServer(engine, pipeline, assembler, store, cfg, zap.NewNop())
}

func writeDoc(t *testing.T, srv *Server, name, content string) {
	t.Helper()
	path := filepath.Join(srv.config.Ingest.Root, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func doIngest(t *testing.T, srv *Server) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status: got %d, body: %s", w.Code, w.Body.String())
	}
}

func postSearch(t *testing.T, srv *Server, req searchRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	return w
}

func TestHandleIngest(t *testing.T) {
	srv := newTestServer(t, nil)
	writeDoc(t, srv, "a.txt", "alpha document text")
	writeDoc(t, srv, "b.txt", "beta document text")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Root  string         `json:"root"`
		Stats ingest.Summary `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Stats.Ingested != 2 || out.Stats.Errors != 0 {
		t.Errorf("stats: %+v", out.Stats)
	}
}

func TestHandleIngest_MissingRoot(t *testing.T) {
	srv := newTestServer(t, nil)
	body, _ := json.Marshal(ingestRequest{Root: filepath.Join(t.TempDir(), "absent")})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleIngest(w, r)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	srv := newTestServer(t, nil)
	writeDoc(t, srv, "hello.txt", "hello world from the index")
	doIngest(t, srv)

	w := postSearch(t, srv, searchRequest{Query: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out searchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 {
		t.Errorf("results: got %d, want 1", len(out.Results))
	}
	if out.Answer != nil {
		t.Error("answer should be absent unless requested")
	}
}

func TestHandleSearch_Validation(t *testing.T) {
	srv := newTestServer(t, nil)

	if w := postSearch(t, srv, searchRequest{Query: "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank query: got %d, want 400", w.Code)
	}
	if w := postSearch(t, srv, searchRequest{Query: "x", K: 10000}); w.Code != http.StatusBadRequest {
		t.Errorf("huge k: got %d, want 400", w.Code)
	}
	// K omitted falls back to the configured default, which is valid.
	if w := postSearch(t, srv, searchRequest{Query: "x"}); w.Code != http.StatusOK {
		t.Errorf("default k: got %d, want 200", w.Code)
	}
}

func TestHandleSearch_AnswerNotConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	if w := postSearch(t, srv, searchRequest{Query: "x", Answer: true}); w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleSearch_WithAnswer(t *testing.T) {
	gen := &staticGenerator{
		reply: `{"quote":"hello world","answer":"It says hello.","citation":"hello.txt p.1"}`,
	}
	srv := newTestServer(t, answer.NewAssembler(gen, 3))
	writeDoc(t, srv, "hello.txt", "hello world from the index")
	doIngest(t, srv)

	w := postSearch(t, srv, searchRequest{Query: "hello", Answer: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out searchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Answer == nil || out.Answer.Text != "It says hello." {
		t.Errorf("answer: %+v", out.Answer)
	}
	if out.Context == "" {
		t.Error("context should accompany a generated answer")
	}
}

func TestHandleSearch_MalformedAnswerStillServesResults(t *testing.T) {
	gen := &staticGenerator{reply: "not json at all"}
	srv := newTestServer(t, answer.NewAssembler(gen, 3))
	writeDoc(t, srv, "hello.txt", "hello world from the index")
	doIngest(t, srv)

	w := postSearch(t, srv, searchRequest{Query: "hello", Answer: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out searchResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Answer != nil {
		t.Error("malformed model output should drop the answer overlay")
	}
	if len(out.Results) != 1 {
		t.Errorf("results: got %d, want 1", len(out.Results))
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	writeDoc(t, srv, "a.txt", "some indexed text")
	doIngest(t, srv)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Files          int64  `json:"files"`
		Chunks         int64  `json:"chunks"`
		DiskUsageBytes *int64 `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Files != 1 {
		t.Errorf("files: got %d, want 1", out.Files)
	}
	if out.Chunks < 1 {
		t.Errorf("chunks: got %d, want >= 1", out.Chunks)
	}
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %v, want >= 1", out.DiskUsageBytes)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" {
		t.Errorf("body: %v", out)
	}
}
