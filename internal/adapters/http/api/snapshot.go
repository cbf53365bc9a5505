package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/domain/model"
)

// SnapshotDependencies encodes the latest frame of a camera.
type SnapshotDependencies interface {
	Snapshot(ctx context.Context, w io.Writer, cameraName, format string) error
}

// SnapshotHandler serves live camera stills.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleSnapshot handles GET /snapshot.jpg?camera=startline|overview requests.
func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := r.URL.Query().Get("camera")
	if name == "" {
		name = model.CameraStartLine
	}
	var buf bytes.Buffer
	if err := h.deps.Snapshot(r.Context(), &buf, name, camera.FormatJPEG); err != nil {
		switch {
		case errors.Is(err, camera.ErrUnknownCamera):
			writeError(w, http.StatusNotFound, "unknown_camera", err)
		case errors.Is(err, camera.ErrNoFrame):
			writeError(w, http.StatusServiceUnavailable, "no_frame", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
