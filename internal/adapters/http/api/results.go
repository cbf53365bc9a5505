package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/laptimer/internal/adapters/report"
	"github.com/okian/laptimer/internal/adapters/repository"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
)

// ResultDependencies reads persisted race results.
type ResultDependencies interface {
	ListResults(ctx context.Context, limit int) ([]model.RaceResult, error)
	GetResult(ctx context.Context, id string) (model.RaceResult, error)
	BestLaps(ctx context.Context, n int) ([]types.LapEntry, error)
}

// ResultsHandler serves stored results, the lap leaderboard and charts.
type ResultsHandler struct {
	deps     ResultDependencies
	maxLimit int
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultDependencies, maxLimit int) *ResultsHandler {
	return &ResultsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleListResults handles GET /results?limit=N requests.
func (h *ResultsHandler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, err := parseLimit(r, defaultListLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	results, err := h.deps.ListResults(r.Context(), limit)
	if err != nil {
		writeResultError(w, err)
		return
	}
	if results == nil {
		results = []model.RaceResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleGetResult handles GET /results/{id} requests.
func (h *ResultsHandler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/results/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.GetResult(r.Context(), id)
	if err != nil {
		writeResultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests.
func (h *ResultsHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, err := parseLimit(r, defaultListLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	entries, err := h.deps.BestLaps(r.Context(), limit)
	if err != nil {
		writeResultError(w, err)
		return
	}
	if entries == nil {
		entries = []types.LapEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleLapChart handles GET /charts/laps requests.
func (h *ResultsHandler) HandleLapChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, err := parseLimit(r, defaultListLimit, h.maxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	results, err := h.deps.ListResults(r.Context(), limit)
	if err != nil {
		writeResultError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.RenderLapChartHTML(&buf, results); err != nil {
		writeError(w, http.StatusInternalServerError, "render_failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// HandleLapChartPNG handles GET /charts/laps.png?id= requests. Without an id
// the newest result is drawn.
func (h *ResultsHandler) HandleLapChartPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	var res model.RaceResult
	if id := r.URL.Query().Get("id"); id != "" {
		got, err := h.deps.GetResult(r.Context(), id)
		if err != nil {
			writeResultError(w, err)
			return
		}
		res = got
	} else {
		latest, err := h.deps.ListResults(r.Context(), 1)
		if err != nil {
			writeResultError(w, err)
			return
		}
		if len(latest) == 0 {
			writeError(w, http.StatusNotFound, "not_found", repository.ErrNotFound)
			return
		}
		res = latest[0]
	}
	var buf bytes.Buffer
	if err := report.WriteLapChartPNG(&buf, res); err != nil {
		writeError(w, http.StatusInternalServerError, "render_failed", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func writeResultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "invalid_limit", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
