package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/answer"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/search"
	"github.com/kensaku-io/kensaku/internal/storage"
)

// searchRequest is the /api/v1/search body. Answer additionally runs the
// generative overlay on top of the retrieval results.
type searchRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	Hybrid bool   `json:"hybrid"`
	Rerank bool   `json:"rerank"`
	Answer bool   `json:"answer"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
	Answer  *answer.Answer        `json:"answer,omitempty"`
	Context string                `json:"context,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.K == 0 {
		req.K = s.config.Search.DefaultK
	}
	s.logger.Debug("search request",
		zap.String("query", req.Query), zap.Int("k", req.K),
		zap.Bool("hybrid", req.Hybrid), zap.Bool("rerank", req.Rerank))

	results, err := s.engine.Search(r.Context(), search.Request{
		Query:  req.Query,
		K:      req.K,
		Hybrid: req.Hybrid,
		Rerank: req.Rerank,
	})
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, searchStatus(err), err.Error())
		return
	}

	resp := searchResponse{Query: req.Query, Results: results}
	if req.Answer {
		if s.assembler == nil {
			s.respondError(w, http.StatusNotImplemented, "answer generation not configured")
			return
		}
		ans, window, err := s.assembler.Answer(r.Context(), req.Query, results)
		resp.Context = window
		switch {
		case errors.Is(err, answer.ErrMalformedAnswer):
			// The retrieval results are still good; serve them without the
			// overlay instead of failing the whole request.
			s.logger.Warn("answer generation produced malformed output", zap.Error(err))
		case err != nil:
			s.logger.Error("answer generation failed", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		default:
			resp.Answer = ans
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// searchStatus maps engine errors onto HTTP statuses: caller mistakes are
// 400s, collaborator outages are 502s, everything else is a 500.
func searchStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery), errors.Is(err, models.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type ingestRequest struct {
	Root string `json:"root,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	root := req.Root
	if root == "" {
		root = s.config.Ingest.Root
	}
	s.logger.Info("ingest request", zap.String("root", root))
	summary, err := s.pipeline.Run(r.Context(), root)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"root":  root,
		"stats": summary,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"files":  stats.Files,
		"chunks": stats.Chunks,
		"config": map[string]interface{}{
			"root":                 s.config.Ingest.Root,
			"extensions":           s.config.Ingest.Extensions,
			"chunk_size":           s.config.Ingest.ChunkSize,
			"chunk_overlap":        s.config.Ingest.ChunkOverlap,
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"database_path":        s.config.Storage.DatabasePath,
		},
	}
	dbPath := s.config.Storage.DatabasePath
	if diskBytes, err := storage.DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm"); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
