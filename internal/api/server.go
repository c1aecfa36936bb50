// Package api exposes the memory subsystem over JSON/HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/floortime-memory/internal/community"
	"github.com/ajitpratap0/floortime-memory/internal/graph"
	"github.com/ajitpratap0/floortime-memory/internal/ingest"
	"github.com/ajitpratap0/floortime-memory/internal/models"
	"github.com/ajitpratap0/floortime-memory/internal/trend"
)

const maxBodyBytes = 1 << 20

// Memory is the façade surface the server calls.
type Memory interface {
	Write(ctx context.Context, req ingest.WriteRequest) (*ingest.WriteResult, error)
	Search(ctx context.Context, req ingest.SearchRequest) ([]models.FactResult, error)
	Trends(ctx context.Context, groupID string) ([]trend.DimensionTrend, error)
	Trend(ctx context.Context, groupID, dimension string) (*trend.DimensionTrend, error)
	Summary(ctx context.Context, groupID string) (string, error)
	Milestones(ctx context.Context, groupID string, days int, dimension string) ([]trend.Milestone, error)
	Correlations(ctx context.Context, groupID string, minCorr float64) ([]trend.Correlation, error)
	RefreshCorrelations(ctx context.Context, groupID string) ([]trend.Correlation, error)
	Communities(ctx context.Context, groupID string) ([]models.Community, error)
	RebuildCommunities(ctx context.Context, groupID string) (*community.Report, error)
	Clear(ctx context.Context, groupID string) error
	QueueStatus() models.QueueStatus
	Health(ctx context.Context) ingest.Health
}

// Server is an HTTP API server that exposes memory operations.
type Server struct {
	memory         Memory
	logger         *slog.Logger
	authToken      string // empty = no auth required
	minCorrelation float64
}

// NewServer creates a new Server with the given dependencies.
func NewServer(mem Memory, logger *slog.Logger, authToken string, minCorrelation float64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		memory:         mem,
		logger:         logger,
		authToken:      authToken,
		minCorrelation: minCorrelation,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics: no auth required.
	mux.HandleFunc("GET /healthcheck", s.handleHealthcheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/memory/queue/status", s.auth(s.handleQueueStatus))
	mux.HandleFunc("POST /api/memory/write", s.auth(s.handleWrite))
	mux.HandleFunc("POST /api/memory/search", s.auth(s.handleSearch))
	mux.HandleFunc("GET /api/memory/trends/{group_id}", s.auth(s.handleTrends))
	mux.HandleFunc("GET /api/memory/trends/{group_id}/{dimension}", s.auth(s.handleTrend))
	mux.HandleFunc("GET /api/memory/summary/{group_id}", s.auth(s.handleSummary))
	mux.HandleFunc("GET /api/memory/milestones/{group_id}", s.auth(s.handleMilestones))
	mux.HandleFunc("GET /api/memory/correlations/{group_id}", s.auth(s.handleCorrelations))
	mux.HandleFunc("POST /api/memory/correlations/{group_id}/refresh", s.auth(s.handleRefreshCorrelations))
	mux.HandleFunc("GET /api/memory/communities/{group_id}", s.auth(s.handleCommunities))
	mux.HandleFunc("POST /api/memory/communities/{group_id}/rebuild", s.auth(s.handleRebuildCommunities))
	mux.HandleFunc("DELETE /api/memory/{group_id}", s.auth(s.handleClear))

	return cors(mux)
}

// --- middleware ---

// cors allows any origin and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.memory.Health(r.Context()))
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.memory.QueueStatus())
}

// writeResponse is returned by POST /api/memory/write.
type writeResponse struct {
	Accepted      bool   `json:"accepted"`
	Status        string `json:"status"`
	ObservationID string `json:"observation_id"`
	QueuePosition int    `json:"queue_position"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req ingest.WriteRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.memory.Write(r.Context(), req)
	if err != nil {
		s.writeFailure(w, "write", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, writeResponse{
		Accepted:      res.Accepted,
		Status:        "queued",
		ObservationID: res.ObservationID,
		QueuePosition: res.QueuePosition,
	})
}

// searchResponse is returned by POST /api/memory/search.
type searchResponse struct {
	Facts []models.FactResult `json:"facts"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req ingest.SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.GroupID) == "" {
		s.writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	facts, err := s.memory.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, ingest.ErrCancelled) {
			s.writeJSON(w, http.StatusOK, searchResponse{Facts: []models.FactResult{}})
			return
		}
		s.writeFailure(w, "search", err)
		return
	}
	if facts == nil {
		facts = []models.FactResult{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Facts: facts})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	trends, err := s.memory.Trends(r.Context(), groupID)
	if err != nil {
		s.writeFailure(w, "trends", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "trends": trends})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	t, err := s.memory.Trend(r.Context(), r.PathValue("group_id"), r.PathValue("dimension"))
	if err != nil {
		s.writeFailure(w, "trend", err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	summary, err := s.memory.Summary(r.Context(), groupID)
	if err != nil {
		s.writeFailure(w, "summary", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"group_id": groupID, "summary": summary})
}

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	q := r.URL.Query()
	days := 0
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}
	ms, err := s.memory.Milestones(r.Context(), groupID, days, q.Get("dimension"))
	if err != nil {
		s.writeFailure(w, "milestones", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "milestones": ms})
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	minCorr := s.minCorrelation
	if v := r.URL.Query().Get("min_correlation"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "min_correlation must be a number")
			return
		}
		minCorr = f
	}
	cs, err := s.memory.Correlations(r.Context(), groupID, minCorr)
	if err != nil {
		s.writeFailure(w, "correlations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "correlations": cs})
}

func (s *Server) handleRefreshCorrelations(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	cs, err := s.memory.RefreshCorrelations(r.Context(), groupID)
	if err != nil {
		s.writeFailure(w, "refresh correlations", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "correlations": cs})
}

func (s *Server) handleCommunities(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	cs, err := s.memory.Communities(r.Context(), groupID)
	if err != nil {
		s.writeFailure(w, "communities", err)
		return
	}
	if cs == nil {
		cs = []models.Community{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "communities": cs})
}

func (s *Server) handleRebuildCommunities(w http.ResponseWriter, r *http.Request) {
	report, err := s.memory.RebuildCommunities(r.Context(), r.PathValue("group_id"))
	if err != nil {
		s.writeFailure(w, "rebuild communities", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group_id")
	if err := s.memory.Clear(r.Context(), groupID); err != nil {
		s.writeFailure(w, "clear", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "cleared": true})
}

// --- helpers ---

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeFailure maps a façade error onto a status code.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrNotReady):
		s.writeError(w, http.StatusServiceUnavailable, "memory engine not ready")
	case errors.Is(err, graph.ErrGraphUnavailable):
		s.logger.Warn("graph unavailable", "op", op, "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "graph unavailable", "retryable": true})
	case errors.Is(err, ingest.ErrCancelled):
		s.writeJSON(w, http.StatusOK, map[string]any{})
	default:
		s.logger.Error("request failed", "op", op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
