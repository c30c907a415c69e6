// Package main is the Kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/answer"
	"github.com/kensaku-io/kensaku/internal/cli"
	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/extract"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/rerank"
	"github.com/kensaku-io/kensaku/internal/search"
	"github.com/kensaku-io/kensaku/internal/server"
	"github.com/kensaku-io/kensaku/internal/storage"
	"github.com/kensaku-io/kensaku/internal/watcher"
	"github.com/kensaku-io/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so running from the project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys commonly live in a local .env during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Ingest.Watch {
		if err := os.MkdirAll(cfg.Ingest.Root, 0755); err != nil {
			logger.Fatal("Failed to create document root", zap.Error(err))
		}
		pipe := components.Pipeline
		store := components.Store
		w := watcher.NewWatcher(
			cfg.Ingest.Root,
			pipe.Eligible,
			func(path string) {
				if _, err := pipe.IngestFile(context.Background(), path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := store.DeleteFile(context.Background(), path); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Pipeline,
		components.Assembler,
		components.Store,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	root := fs.String("root", "", "document root (default: ingest.root from config)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	target := cfg.Ingest.Root
	if *root != "" {
		target = *root
	}
	summary, err := components.Pipeline.Run(context.Background(), target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested: %d  Skipped: %d  Errors: %d\n",
		summary.Ingested, summary.Skipped, summary.Errors)
	if summary.Errors > 0 {
		os.Exit(1)
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "kensaku search query
// -hybrid" would otherwise leave -hybrid unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kensaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kensaku search warranty period
  kensaku search "warranty period"            # same as above
  kensaku search -hybrid -k 10 solar panels   # lexical + vector fusion
  kensaku search -hybrid -rerank contract terms
  kensaku search -answer how long is the warranty
  kensaku search -output json query           # structured JSON for other apps
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = use direct storage when server is not running)`)
	k := fs.Int("k", 0, "number of results (default: search.default_k from config)")
	hybrid := fs.Bool("hybrid", false, "fuse lexical and vector scores")
	doRerank := fs.Bool("rerank", false, "rerank candidates with the cross-encoder")
	doAnswer := fs.Bool("answer", false, "generate a cited answer from the top results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	if *serverURL != "" {
		out, err := searchViaHTTP(*serverURL, map[string]interface{}{
			"query":  queryStr,
			"k":      *k,
			"hybrid": *hybrid,
			"rerank": *doRerank,
			"answer": *doAnswer,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchOutput(os.Stdout, out, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	limit := *k
	if limit == 0 {
		limit = cfg.Search.DefaultK
	}
	results, err := components.Engine.Search(context.Background(), search.Request{
		Query:  queryStr,
		K:      limit,
		Hybrid: *hybrid,
		Rerank: *doRerank,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	out := &cli.SearchOutput{Query: queryStr, Results: results}
	if *doAnswer {
		if components.Assembler == nil {
			fmt.Fprintln(os.Stderr, "Answer generation not configured (no API key)")
			os.Exit(1)
		}
		ans, window, err := components.Assembler.Answer(context.Background(), queryStr, results)
		out.Context = window
		if err != nil {
			fmt.Fprintf(os.Stderr, "Answer generation failed: %v\n", err)
		} else {
			out.Answer = ans
		}
	}
	if err := cli.WriteSearchOutput(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, reqBody map[string]interface{}) (*cli.SearchOutput, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out cli.SearchOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Files          int64                  `json:"files"`
	Chunks         int64                  `json:"chunks"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = use direct storage)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		stats, err := store.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Files:  stats.Files,
			Chunks: stats.Chunks,
			Config: map[string]interface{}{
				"root":          cfg.Ingest.Root,
				"database_path": cfg.Storage.DatabasePath,
			},
		}
		dbPath := cfg.Storage.DatabasePath
		if diskBytes, err := storage.DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm"); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("files:             %d   # count of indexed files\n", status.Files)
		fmt.Printf("chunks:            %d   # count of text chunks\n", status.Chunks)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:  %d   # database on disk\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"root", "database_path", "chunk_size", "chunk_overlap", "embedding_model", "embedding_dimensions"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-20s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Embedder  embedding.Embedder
	Engine    *search.Engine
	Pipeline  *ingest.Pipeline
	Assembler *answer.Assembler
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	apiKey := os.Getenv(cfg.Embedding.APIKeyEnv)
	var embedder embedding.Embedder
	if apiKey != "" {
		embedder, err = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout(),
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	} else {
		logger.Warn("no embedding API key set, using deterministic mock embedder",
			zap.String("api_key_env", cfg.Embedding.APIKeyEnv))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	var reranker rerank.Reranker
	if cfg.Rerank.BaseURL != "" {
		reranker, err = rerank.NewHTTPReranker(rerank.HTTPConfig{
			BaseURL: cfg.Rerank.BaseURL,
			Model:   cfg.Rerank.Model,
			Timeout: cfg.Rerank.Timeout(),
		})
		if err != nil {
			_ = embedder.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize reranker: %w", err)
		}
	} else {
		reranker = rerank.NewMockReranker()
	}

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		_ = embedder.Close()
		_ = store.Close()
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	pipeline := ingest.NewPipeline(
		store, embedder, extract.NewExtractor(), chunker, cfg.Ingest.Extensions,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(logger),
	)
	engine := search.NewEngine(store, embedder, reranker, &cfg.Search, search.WithLogger(logger))

	var assembler *answer.Assembler
	if apiKey != "" {
		generator, err := answer.NewOpenAIGenerator(answer.GeneratorConfig{
			APIKey:  apiKey,
			BaseURL: cfg.Answer.BaseURL,
			Model:   cfg.Answer.Model,
			Timeout: cfg.Answer.Timeout(),
		})
		if err != nil {
			_ = embedder.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize answer generator: %w", err)
		}
		assembler = answer.NewAssembler(generator, cfg.Answer.ContextChunks, answer.WithLogger(logger))
	}

	return &Components{
		Store:     store,
		Embedder:  embedder,
		Engine:    engine,
		Pipeline:  pipeline,
		Assembler: assembler,
	}, nil
}

func printUsage() {
	fmt.Println(`kensaku - local document indexer with hybrid retrieval

Usage:
  kensaku server [flags]           Start the HTTP server
  kensaku ingest [flags]           Index the document root
  kensaku search [flags] <query>   Search indexed documents
  kensaku status [flags]           Show index status
  kensaku version                  Show version
  kensaku help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kensaku/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --root string      Document root (default: ingest.root from config)

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --k int            Number of results (default: search.default_k from config)
  --hybrid           Fuse lexical and vector scores
  --rerank           Rerank candidates with the cross-encoder
  --answer           Generate a cited answer from the top results
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  kensaku server
  kensaku ingest
  kensaku search warranty period
  kensaku search -hybrid -rerank "contract terms"
  kensaku search -answer how long is the warranty
  kensaku status --output json`)
}
