package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/fingerprint"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/storage"
)

// Summary aggregates per-file outcomes of one ingestion run. Counters are
// order-independent.
type Summary struct {
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Pipeline walks a document root, fingerprints each file, and reindexes the
// stale ones. Files are independent units of work processed by a worker
// pool; the store is the only shared resource (WAL plus busy timeout handle
// writer contention).
type Pipeline struct {
	store      storage.Store
	embedder   embedding.Embedder
	extractor  *extract.Extractor
	chunker    *Chunker
	extensions map[string]struct{}
	workers    int
	logger     *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithWorkers sets the worker pool size. Defaults to runtime.NumCPU().
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets a logger for per-file debug events and run summaries.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline. extensions is the allow-list of
// file extensions (with leading dot, case-insensitive) eligible for
// ingestion.
func NewPipeline(
	store storage.Store,
	embedder embedding.Embedder,
	extractor *extract.Extractor,
	chunker *Chunker,
	extensions []string,
	opts ...PipelineOption,
) *Pipeline {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	p := &Pipeline{
		store:      store,
		embedder:   embedder,
		extractor:  extractor,
		chunker:    chunker,
		extensions: allowed,
		workers:    runtime.NumCPU(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests every eligible file under root and returns the aggregate
// summary. One failing file never aborts the batch; its error is logged and
// counted. Re-running over an untouched corpus performs no extraction or
// embedding work.
func (p *Pipeline) Run(ctx context.Context, root string) (Summary, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Summary{}, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return Summary{}, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("not a directory: %s", absRoot)
	}

	paths, err := p.enumerate(absRoot)
	if err != nil {
		return Summary{}, err
	}
	runID := uuid.New().String()
	p.logger.Info("ingestion run started",
		zap.String("run_id", runID),
		zap.String("root", absRoot),
		zap.Int("files", len(paths)),
		zap.Int("workers", p.workers),
	)
	if len(paths) == 0 {
		return Summary{}, nil
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return Summary{}, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		ingested atomic.Int64
		skipped  atomic.Int64
		failed   atomic.Int64
	)
	for _, path := range paths {
		path := path
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			outcome, err := p.processFile(ctx, path)
			switch {
			case err != nil:
				failed.Add(1)
				p.logger.Warn("file ingestion failed",
					zap.String("run_id", runID), zap.String("path", path), zap.Error(err))
			case outcome == outcomeSkipped:
				skipped.Add(1)
				p.logger.Debug("file unchanged, skipped",
					zap.String("run_id", runID), zap.String("path", path))
			default:
				ingested.Add(1)
				p.logger.Debug("file ingested",
					zap.String("run_id", runID), zap.String("path", path))
			}
		})
		if submitErr != nil {
			wg.Done()
			failed.Add(1)
			p.logger.Warn("worker submit failed",
				zap.String("run_id", runID), zap.String("path", path), zap.Error(submitErr))
		}
	}
	wg.Wait()

	summary := Summary{
		Ingested: int(ingested.Load()),
		Skipped:  int(skipped.Load()),
		Errors:   int(failed.Load()),
	}
	p.logger.Info("ingestion run complete",
		zap.String("run_id", runID),
		zap.Int("ingested", summary.Ingested),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// IngestFile ingests a single file (watcher entry point). Returns whether
// the file was skipped as unchanged.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (bool, error) {
	outcome, err := p.processFile(ctx, path)
	return outcome == outcomeSkipped, err
}

// Eligible reports whether path passes the extension allow-list.
func (p *Pipeline) Eligible(path string) bool {
	_, ok := p.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeSkipped
)

// processFile runs one file through fingerprint, change detection,
// extraction, chunking, embedding, and atomic chunk replacement.
func (p *Pipeline) processFile(ctx context.Context, path string) (outcome, error) {
	fp, err := fingerprint.Compute(path)
	if err != nil {
		return 0, err
	}
	fileID, unchanged, err := p.store.UpsertFile(ctx, path, fp.SHA256, fp.ModifiedNs, fp.SizeBytes)
	if err != nil {
		return 0, err
	}
	if unchanged {
		has, err := p.store.HasChunks(ctx, fileID)
		if err != nil {
			return 0, err
		}
		if has {
			return outcomeSkipped, nil
		}
		// Fingerprint matched but chunks are missing (a prior run may have
		// recorded the file and then failed); fall through and reindex.
	}

	pages, err := p.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("extract pages: %w", err)
	}

	var chunks []models.Chunk
	for _, page := range pages {
		for ci, text := range p.chunker.Chunk(page.Text) {
			chunks = append(chunks, models.Chunk{
				FileID:     fileID,
				PageNum:    page.Number,
				ChunkIndex: ci,
				Text:       text,
			})
		}
	}
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
	}
	if err := p.store.ReplaceChunks(ctx, fileID, chunks); err != nil {
		return 0, fmt.Errorf("replace chunks: %w", err)
	}
	return outcomeIngested, nil
}

// enumerate collects eligible regular files under root, recursively.
func (p *Pipeline) enumerate(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !p.Eligible(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		info, statErr := os.Stat(path)
		if statErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk root: %w", err)
	}
	return paths, nil
}
