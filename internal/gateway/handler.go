// Package gateway implements the inbound HTTP surface of the search service.
//
// Routes:
//
//	POST /search              → submit a search and wait for its result
//	GET  /jobs/{id}/status    → current status record for a job
//	GET  /health              → liveness plus request queue depth
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reposcout/search-service/internal/audit"
	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
	"reposcout/search-service/internal/queue"
)

const maxBodyBytes = 16 << 10

// Jobs is the caller side of the job queue.
type Jobs interface {
	Enqueue(ctx context.Context, filters model.SearchFilters) (model.JobEnvelope, error)
	Await(ctx context.Context, jobID string, timeout time.Duration) (*model.ResultEnvelope, error)
	Status(ctx context.Context, jobID string) (*model.StatusRecord, error)
	Depth(ctx context.Context) (int64, error)
}

// History looks up jobs whose live status has already expired.
type History interface {
	Get(ctx context.Context, jobID string) (*audit.Entry, error)
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	jobs         Jobs
	history      History
	awaitTimeout time.Duration
	version      string
	logger       *slog.Logger
}

// NewHandler returns a configured Handler. history may be nil.
func NewHandler(jobs Jobs, history History, awaitTimeout time.Duration, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:         jobs,
		history:      history,
		awaitTimeout: awaitTimeout,
		version:      version,
		logger:       logger.With("component", "gateway"),
	}
}

// Routes returns the router with every gateway route mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Post("/search", h.handleSearch)
	r.Get("/jobs/{id}/status", h.handleStatus)
	return r
}

// ─── Routes ──────────────────────────────────────────────────────────────────

// POST /search
// Body: SearchFilters JSON. Responds with the result envelope.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var filters model.SearchFilters
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&filters); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	env, err := h.jobs.Enqueue(r.Context(), filters)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			jsonWrite(w, http.StatusBadRequest, map[string]string{"error": verr.Msg, "field": verr.Field})
			return
		}
		h.logger.Error("enqueue failed", "err", err)
		jsonError(w, "job queue unavailable", http.StatusServiceUnavailable)
		return
	}

	result, err := h.jobs.Await(r.Context(), env.ID, h.awaitTimeout)
	switch {
	case errors.Is(err, queue.ErrTimeout):
		// the job keeps running; the caller can poll its status
		jsonWrite(w, http.StatusGatewayTimeout, map[string]string{
			"error":  "search did not finish in time",
			"jobId":  env.ID,
			"status": "/jobs/" + env.ID + "/status",
		})
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		h.logger.Error("await failed", "job_id", env.ID, "err", err)
		jsonError(w, "job queue unavailable", http.StatusServiceUnavailable)
		return
	}

	if result.Status == jobstatus.StatusError {
		jsonWrite(w, http.StatusBadGateway, result)
		return
	}
	jsonOK(w, result)
}

// GET /jobs/{id}/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.jobs.Status(r.Context(), id)
	if err == nil {
		jsonOK(w, rec)
		return
	}
	if !errors.Is(err, queue.ErrNotFound) {
		h.logger.Error("status lookup failed", "job_id", id, "err", err)
		jsonError(w, "job queue unavailable", http.StatusServiceUnavailable)
		return
	}

	if h.history != nil {
		entry, herr := h.history.Get(r.Context(), id)
		if herr == nil {
			jsonOK(w, entry.StatusRecord())
			return
		}
		if !errors.Is(herr, audit.ErrNotFound) {
			h.logger.Warn("audit lookup failed", "job_id", id, "err", herr)
		}
	}
	jsonError(w, "job not found", http.StatusNotFound)
}

// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.jobs.Depth(r.Context())
	if err != nil {
		jsonWrite(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"service": "reposcout-api",
			"version": h.version,
			"error":   err.Error(),
		})
		return
	}
	jsonOK(w, map[string]any{
		"status":     "ok",
		"service":    "reposcout-api",
		"version":    h.version,
		"queueDepth": depth,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	jsonWrite(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, map[string]string{"error": msg})
}

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
