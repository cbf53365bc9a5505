package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/adapters/mq/queue"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/domain/types"
)

// RaceDependencies controls the current race.
type RaceDependencies interface {
	RaceStatus() model.RaceStatus
	StartRace(ctx context.Context) error
	StopRace(ctx context.Context) (*model.RaceResult, error)
	ResetRace(ctx context.Context)
	TriggerCrossing(ctx context.Context) error
	Screenshot(ctx context.Context) ([]string, error)

	// SeenAndRecord and Unrecord track crossing idempotency keys.
	SeenAndRecord(ctx context.Context, key string) bool
	Unrecord(ctx context.Context, key string)
}

// IdempotencyKeyHeader lets a client retry POST /race/crossing safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// RaceHandler serves race status and operator controls.
type RaceHandler struct {
	deps RaceDependencies
}

// NewRaceHandler creates a new race handler.
func NewRaceHandler(deps RaceDependencies) *RaceHandler {
	return &RaceHandler{deps: deps}
}

type stopResponse struct {
	Status string            `json:"status"`
	Result *model.RaceResult `json:"result,omitempty"`
}

type screenshotResponse struct {
	Paths []string `json:"paths"`
}

// HandleGetRace handles GET /race requests.
func (h *RaceHandler) HandleGetRace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toRaceView(h.deps.RaceStatus()))
}

// HandleGetLaps handles GET /laps requests.
func (h *RaceHandler) HandleGetLaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toRaceView(h.deps.RaceStatus()).Laps)
}

// HandleStart handles POST /race/start requests.
func (h *RaceHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.StartRace(r.Context()); err != nil {
		writeRaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started"})
}

// HandleStop handles POST /race/stop requests. The response carries the
// result when at least one lap was recorded.
func (h *RaceHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.StopRace(r.Context())
	if err != nil {
		writeRaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{Status: "stopped", Result: res})
}

// HandleReset handles POST /race/reset requests.
func (h *RaceHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.deps.ResetRace(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{Status: "reset"})
}

// HandleCrossing handles POST /race/crossing requests.
func (h *RaceHandler) HandleCrossing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && h.deps.SeenAndRecord(ctx, key) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "duplicate"})
		return
	}
	if err := h.deps.TriggerCrossing(ctx); err != nil {
		if key != "" {
			h.deps.Unrecord(ctx, key)
		}
		writeRaceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

// HandleScreenshot handles POST /race/screenshot requests.
func (h *RaceHandler) HandleScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	paths, err := h.deps.Screenshot(r.Context())
	if err != nil {
		writeRaceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screenshotResponse{Paths: paths})
}

func writeRaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, race.ErrAlreadyRunning), errors.Is(err, race.ErrNotRunning):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, cooldown.ErrCoolingDown):
		writeError(w, http.StatusTooManyRequests, "cooling_down", err)
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed),
		errors.Is(err, camera.ErrNoFrame), errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func toRaceView(st model.RaceStatus) types.RaceView {
	v := types.RaceView{
		State:        st.State.String(),
		CurrentLap:   st.CurrentLap,
		MaxLaps:      st.MaxLaps,
		Laps:         make([]types.LapView, 0, len(st.Laps)),
		TimerVisible: st.TimerVisible,
	}
	for _, l := range st.Laps {
		v.Laps = append(v.Laps, types.LapView{
			Number:    l.Number,
			Seconds:   laps.Round3(l.Seconds()),
			Formatted: laps.FormatDuration(l.Duration),
			Best:      l.Number == st.BestLapNumber,
		})
	}
	if st.LastLap > 0 {
		v.LastLap = laps.FormatDuration(st.LastLap)
	}
	if st.BestLap > 0 {
		v.BestLap = laps.FormatDuration(st.BestLap)
		v.BestLapNumber = st.BestLapNumber
	}
	switch {
	case st.State == model.RaceFinished:
		v.Elapsed = laps.FormatDuration(st.Elapsed)
	case st.State == model.RaceRunning && st.TimerVisible:
		v.Elapsed = laps.FormatDuration(st.Elapsed)
		v.CurrentLapElapsed = laps.FormatDuration(st.CurrentLapElapsed)
	}
	return v
}
