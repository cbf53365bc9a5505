package camera

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/okian/laptimer/internal/domain/model"
)

// Slot holds the latest frame of one camera. Writers replace the frame and
// readers either peek at it or wait for a newer one.
type Slot struct {
	mu      sync.Mutex
	camera  string
	frame   model.Frame
	updated chan struct{} // closed and replaced on every Put
}

// NewSlot creates an empty slot for the named camera.
func NewSlot(camera string) *Slot {
	return &Slot{camera: camera, updated: make(chan struct{})}
}

// Camera returns the camera role the slot belongs to.
func (s *Slot) Camera() string { return s.camera }

// Put stores img as the newest frame and wakes waiting readers.
func (s *Slot) Put(img *image.Gray, at time.Time) model.Frame {
	s.mu.Lock()
	s.frame = model.Frame{
		Camera:     s.camera,
		Seq:        s.frame.Seq + 1,
		Image:      img,
		CapturedAt: at,
	}
	f := s.frame
	close(s.updated)
	s.updated = make(chan struct{})
	s.mu.Unlock()
	return f
}

// Latest returns the newest frame, or false before the first Put.
func (s *Slot) Latest() (model.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frame.Seq > 0
}

// Wait blocks until a frame newer than afterSeq is available or ctx ends.
func (s *Slot) Wait(ctx context.Context, afterSeq uint64) (model.Frame, error) {
	for {
		s.mu.Lock()
		f, ch := s.frame, s.updated
		s.mu.Unlock()
		if f.Seq > afterSeq {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return model.Frame{}, ctx.Err()
		case <-ch:
		}
	}
}
