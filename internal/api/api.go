// Package api provides the REST surface of the review daemon: submit and
// poll reviews, stream progress, browse the report archive, and manage the
// result cache.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joescharf/coderev/internal/cache"
	"github.com/joescharf/coderev/internal/git"
	"github.com/joescharf/coderev/internal/models"
	"github.com/joescharf/coderev/internal/pipeline"
	"github.com/joescharf/coderev/internal/provider"
	"github.com/joescharf/coderev/internal/registry"
	"github.com/joescharf/coderev/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	controller *pipeline.Controller
	registry   *registry.Registry
	gate       *cache.Gate
	store      store.Store
	gh         git.GitHubClient
	meter      *provider.Meter

	// streamInterval is the SSE poll cadence. Defaults to one second.
	streamInterval time.Duration
}

// NewServer creates a new API server. The gh client may be nil when PR
// reviews are not configured.
func NewServer(ctrl *pipeline.Controller, reg *registry.Registry, gate *cache.Gate,
	st store.Store, ghc git.GitHubClient, meter *provider.Meter) *Server {
	return &Server{
		controller:     ctrl,
		registry:       reg,
		gate:           gate,
		store:          st,
		gh:             ghc,
		meter:          meter,
		streamInterval: time.Second,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/reviews", s.submitReview)
	mux.HandleFunc("POST /api/v1/reviews/sync", s.runReviewSync)
	mux.HandleFunc("POST /api/v1/reviews/pr", s.reviewPR)
	mux.HandleFunc("GET /api/v1/reviews/{id}", s.getReview)
	mux.HandleFunc("GET /api/v1/reviews/{id}/stream", s.streamReview)
	mux.HandleFunc("DELETE /api/v1/reviews/{id}", s.deleteReview)

	mux.HandleFunc("GET /api/v1/reports", s.listReports)
	mux.HandleFunc("GET /api/v1/reports/{id}", s.getReport)
	mux.HandleFunc("DELETE /api/v1/reports/{id}", s.deleteReport)

	mux.HandleFunc("GET /api/v1/cache/stats", s.cacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", s.clearCache)
	mux.HandleFunc("DELETE /api/v1/cache/path", s.invalidateCachePath)

	mux.HandleFunc("GET /api/v1/costs", s.costs)

	mux.HandleFunc("GET /healthz", s.healthz)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Reviews ---

type submitFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

type submitRequest struct {
	Files   []submitFile   `json:"files"`
	Options map[string]any `json:"options,omitempty"`
}

func (r submitRequest) units() []models.CodeUnit {
	units := make([]models.CodeUnit, 0, len(r.Files))
	for _, f := range r.Files {
		units = append(units, models.NewCodeUnit(f.Path, f.Content, f.Language))
	}
	return units
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := s.controller.Submit(req.units(), models.OptionsFromMap(req.Options))
	if err != nil {
		if pipeline.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"review_id": id,
		"status":    string(models.StagePending),
	})
}

func (s *Server) runReviewSync(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	report, err := s.controller.Run(r.Context(), req.units(), models.OptionsFromMap(req.Options))
	if err != nil {
		if pipeline.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type prRequest struct {
	Owner       string         `json:"owner"`
	Repo        string         `json:"repo"`
	Number      int            `json:"number"`
	PostComment bool           `json:"post_comment,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

func (s *Server) reviewPR(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		writeError(w, http.StatusServiceUnavailable, "pull request reviews are not configured")
		return
	}

	var req prRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Owner == "" || req.Repo == "" || req.Number <= 0 {
		writeError(w, http.StatusBadRequest, "owner, repo, and number are required")
		return
	}

	units, pr, err := git.FetchPRUnits(s.gh, req.Owner, req.Repo, req.Number, pipeline.MaxFileBytes)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch pull request: %v", err))
		return
	}

	report, err := s.controller.Run(r.Context(), units, models.OptionsFromMap(req.Options))
	if err != nil {
		if pipeline.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.PostComment {
		if err := s.gh.PostComment(req.Owner, req.Repo, req.Number, git.FormatReviewComment(report)); err != nil {
			slog.Warn("failed to post review comment",
				"repo", req.Owner+"/"+req.Repo, "pr", req.Number, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pull_request": pr,
		"report":       report,
	})
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// streamReview pushes status snapshots as server-sent events until the run
// reaches a terminal stage.
func (s *Server) streamReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for status := range s.registry.Watch(r.Context(), id, s.streamInterval) {
		data, err := json.Marshal(status)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Delete(id) {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// --- Reports ---

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	filter := store.ReportListFilter{
		Recommendation: models.Recommendation(r.URL.Query().Get("recommendation")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	summaries, err := s.store.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summaries == nil {
		summaries = []*store.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// --- Cache ---

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Stats())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	deleted := s.gate.Clear(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) invalidateCachePath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	deleted := s.gate.InvalidatePath(r.Context(), path)
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "deleted": deleted})
}

// --- Costs ---

func (s *Server) costs(w http.ResponseWriter, _ *http.Request) {
	requests, total := s.meter.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":       requests,
		"total_cost_usd": total,
	})
}

// --- Health ---

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"reviews": s.registry.Len(),
	})
}
