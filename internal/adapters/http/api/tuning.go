package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okian/laptimer/internal/domain/detection"
)

const maxTuningBody = 16 << 10

// DetectionDependencies exposes the detector state and runtime tuning.
type DetectionDependencies interface {
	Tuning() detection.Settings
	AdjustTuning(ctx context.Context, param string, dir detection.Direction) (detection.Settings, error)
	UpdateTuning(ctx context.Context, s detection.Settings) (detection.Settings, error)
	LatestDecision() (detection.Decision, bool)
}

// DetectionHandler serves the debug panel and threshold tuning.
type DetectionHandler struct {
	deps DetectionDependencies
}

// NewDetectionHandler creates a new detection handler.
func NewDetectionHandler(deps DetectionDependencies) *DetectionHandler {
	return &DetectionHandler{deps: deps}
}

// tuningView is Settings with the cooldown in seconds.
type tuningView struct {
	detection.Settings
	CooldownSeconds float64 `json:"detection_cooldown"`
}

type adjustRequest struct {
	Param     string `json:"param"`
	Direction string `json:"direction"`
}

func newTuningView(s detection.Settings) tuningView {
	return tuningView{Settings: s, CooldownSeconds: s.Cooldown.Seconds()}
}

// HandleGetDetection handles GET /detection requests.
func (h *DetectionHandler) HandleGetDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	dec, ok := h.deps.LatestDecision()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no_decision", errors.New("no frame processed yet"))
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// HandleTuning handles GET and POST /tuning requests. A POST either steps
// one parameter ({"param":..., "direction":"up"}) or overlays absolute values
// on the current settings.
func (h *DetectionHandler) HandleTuning(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newTuningView(h.deps.Tuning()))
	case http.MethodPost:
		h.handleUpdate(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *DetectionHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTuningBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind("read body", ErrBadRequest, err))
		return
	}

	var adj adjustRequest
	if err := json.Unmarshal(body, &adj); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind("decode tuning", ErrBadRequest, err))
		return
	}

	var updated detection.Settings
	if adj.Param != "" {
		dir, perr := detection.ParseDirection(adj.Direction)
		if perr != nil {
			writeTuningError(w, perr)
			return
		}
		updated, err = h.deps.AdjustTuning(r.Context(), adj.Param, dir)
	} else {
		v := newTuningView(h.deps.Tuning())
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if derr := dec.Decode(&v); derr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind("decode tuning", ErrBadRequest, derr))
			return
		}
		v.Cooldown = time.Duration(v.CooldownSeconds * float64(time.Second))
		updated, err = h.deps.UpdateTuning(r.Context(), v.Settings)
	}
	if err != nil {
		writeTuningError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTuningView(updated))
}

func writeTuningError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, detection.ErrInvalidSettings),
		errors.Is(err, detection.ErrUnknownParam),
		errors.Is(err, detection.ErrUnknownDetector),
		errors.Is(err, detection.ErrOpenCVUnavailable):
		writeError(w, http.StatusBadRequest, "invalid_tuning", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
