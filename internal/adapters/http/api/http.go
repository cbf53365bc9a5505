// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// Default and upper bound for list endpoints.
const (
	defaultListLimit = 20
	defaultMaxLimit  = 100
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RaceDependencies
	DetectionDependencies
	ResultDependencies
	SnapshotDependencies
	StatsProvider
}

// Server wires HTTP routes for the timing API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	raceHandler      *RaceHandler
	detectionHandler *DetectionHandler
	resultsHandler   *ResultsHandler
	snapshotHandler  *SnapshotHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit query parameter of list endpoints.
func NewServer(deps Dependencies, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		raceHandler:      NewRaceHandler(deps),
		detectionHandler: NewDetectionHandler(deps),
		resultsHandler:   NewResultsHandler(deps, maxLimit),
		snapshotHandler:  NewSnapshotHandler(deps),
		dashboardHandler: newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/race", MetricsMiddleware(s.raceHandler.HandleGetRace, "race"))
	mux.HandleFunc("/race/start", MetricsMiddleware(s.raceHandler.HandleStart, "race_start"))
	mux.HandleFunc("/race/stop", MetricsMiddleware(s.raceHandler.HandleStop, "race_stop"))
	mux.HandleFunc("/race/reset", MetricsMiddleware(s.raceHandler.HandleReset, "race_reset"))
	mux.HandleFunc("/race/crossing", MetricsMiddleware(s.raceHandler.HandleCrossing, "race_crossing"))
	mux.HandleFunc("/race/screenshot", MetricsMiddleware(s.raceHandler.HandleScreenshot, "race_screenshot"))
	mux.HandleFunc("/laps", MetricsMiddleware(s.raceHandler.HandleGetLaps, "laps"))

	mux.HandleFunc("/detection", MetricsMiddleware(s.detectionHandler.HandleGetDetection, "detection"))
	mux.HandleFunc("/tuning", MetricsMiddleware(s.detectionHandler.HandleTuning, "tuning"))

	mux.HandleFunc("/results", MetricsMiddleware(s.resultsHandler.HandleListResults, "results"))
	mux.HandleFunc("/results/", MetricsMiddleware(s.resultsHandler.HandleGetResult, "result"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.resultsHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/charts/laps", MetricsMiddleware(s.resultsHandler.HandleLapChart, "charts_laps"))
	mux.HandleFunc("/charts/laps.png", MetricsMiddleware(s.resultsHandler.HandleLapChartPNG, "charts_laps_png"))

	mux.HandleFunc("/snapshot.jpg", MetricsMiddleware(s.snapshotHandler.HandleSnapshot, "snapshot"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// parseLimit reads ?limit=N. A missing value yields def; anything outside
// 1..maxLimit is an error.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return min(def, maxLimit), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, ErrBadRequest
	}
	if n > maxLimit {
		return 0, ErrLimitExceeded
	}
	return n, nil
}
