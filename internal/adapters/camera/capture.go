package camera

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/timeutil"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

// Capturer copies frames from a Source into a Slot, one goroutine per camera.
type Capturer struct {
	source   Source
	slot     *Slot
	interval time.Duration
	clock    timeutil.Clock
	logger   logger.Logger
	frames   uint64
	failures uint64
}

// CaptureOption configures a Capturer.
type CaptureOption func(*Capturer)

// WithFPS paces reads at fps frames per second. Zero reads as fast as the source allows.
func WithFPS(fps int) CaptureOption {
	return func(c *Capturer) {
		if fps > 0 {
			c.interval = time.Second / time.Duration(fps)
		} else {
			c.interval = 0
		}
	}
}

// WithCaptureClock sets the clock used for pacing and frame timestamps.
func WithCaptureClock(clock timeutil.Clock) CaptureOption {
	return func(c *Capturer) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCaptureLogger sets a custom logger.
func WithCaptureLogger(l logger.Logger) CaptureOption {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCapturer creates a capture loop for source writing into slot.
func NewCapturer(source Source, slot *Slot, opts ...CaptureOption) *Capturer {
	c := &Capturer{
		source:   source,
		slot:     slot,
		interval: time.Second / 30,
		clock:    timeutil.RealClock{},
		logger:   logger.Get().Named("capture").Named(slot.Camera()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads until ctx ends or the source is exhausted. Read errors are logged
// and counted; only io.EOF stops the loop.
func (c *Capturer) Run(ctx context.Context) error {
	camera := c.slot.Camera()
	c.logger.Info(ctx, "capture started",
		logger.String("source", c.source.Name()),
		logger.Duration("interval", c.interval),
	)

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := c.clock.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		img, err := c.source.Read(ctx)
		switch {
		case errors.Is(err, io.EOF):
			c.logger.Info(ctx, "source exhausted", logger.Uint64("frames", c.frames))
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.failures++
			metrics.RecordCaptureError(camera)
			c.logger.Warn(ctx, "frame read failed", logger.Error(err), logger.Uint64("failures", c.failures))
			continue
		}

		c.slot.Put(detection.ToGray(img), c.clock.Now())
		c.frames++
		metrics.RecordFrameCaptured(camera)
	}
}

// Frames returns the number of frames written so far. Call after Run returns.
func (c *Capturer) Frames() uint64 { return c.frames }
