// Package server provides the HTTP API for the indexer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/answer"
	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/ingest"
	"github.com/kensaku-io/kensaku/internal/search"
	"github.com/kensaku-io/kensaku/internal/storage"
)

// Server is the HTTP server for the indexer API.
type Server struct {
	engine    *search.Engine
	pipeline  *ingest.Pipeline
	assembler *answer.Assembler
	store     storage.Store
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. assembler may be
// nil; search requests asking for a generated answer then get a 501.
func NewServer(
	engine *search.Engine,
	pipeline *ingest.Pipeline,
	assembler *answer.Assembler,
	store storage.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		pipeline:  pipeline,
		assembler: assembler,
		store:     store,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the HTTP routes. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
