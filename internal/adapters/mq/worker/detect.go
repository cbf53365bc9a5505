package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

// FrameSource yields frames newer than a sequence number.
type FrameSource interface {
	Camera() string
	Wait(ctx context.Context, afterSeq uint64) (model.Frame, error)
}

// Gate admits triggered decisions outside the cooldown window.
type Gate interface {
	TryAcquire() bool
}

// DetectWorker runs a detector over the start-line camera and enqueues a
// crossing for every triggered decision the cooldown gate lets through.
type DetectWorker struct {
	base

	frames FrameSource
	gate   Gate
	out    Enqueuer

	mu       sync.RWMutex
	detector detection.Detector
	latest   detection.Decision
	hasDec   bool

	processed atomic.Uint64
	accepted  atomic.Uint64
	lastSeq   uint64
}

// NewDetectWorker creates a detect worker.
func NewDetectWorker(frames FrameSource, det detection.Detector, gate Gate, out Enqueuer, opts ...Option) *DetectWorker {
	w := &DetectWorker{
		frames:   frames,
		detector: det,
		gate:     gate,
		out:      out,
	}
	w.setup("detect", opts)
	return w
}

// Run waits for frames and processes each one in order.
func (w *DetectWorker) Run(ctx context.Context) {
	defer close(w.done)
	ctx, cancel := w.runContext(ctx)
	defer cancel()

	w.logger.Info(ctx, "detection started", logger.String("camera", w.frames.Camera()))
	for {
		f, err := w.frames.Wait(ctx, w.lastSeq)
		if err != nil {
			w.logger.Info(ctx, "detection stopped", logger.Uint64("frames", w.processed.Load()))
			return
		}
		w.Process(ctx, f)
	}
}

// Process runs detection on a single frame. Frames skipped since the
// previous call are counted as dropped.
func (w *DetectWorker) Process(ctx context.Context, f model.Frame) (detection.Decision, bool) {
	if w.lastSeq > 0 && f.Seq > w.lastSeq+1 {
		metrics.RecordFramesDropped(f.Camera, int(f.Seq-w.lastSeq-1))
	}
	w.lastSeq = f.Seq
	w.processed.Add(1)

	w.mu.RLock()
	det := w.detector
	w.mu.RUnlock()

	start := time.Now()
	dec, err := det.Detect(f)
	if err != nil {
		metrics.RecordErrorByComponent("detector", "detect_error")
		w.logger.Warn(ctx, "detection failed", logger.Uint64("seq", f.Seq), logger.Error(err))
		return detection.Decision{}, false
	}
	metrics.RecordDetection(float64(time.Since(start).Microseconds())/1000, dec.Measurement.MotionPixels, dec.ConditionsMet)

	w.mu.Lock()
	w.latest, w.hasDec = dec, true
	w.mu.Unlock()

	if !dec.Triggered {
		return dec, false
	}
	if !w.gate.TryAcquire() {
		metrics.RecordDetectionSuppressed()
		w.logger.Debug(ctx, "crossing suppressed by cooldown", logger.Uint64("seq", f.Seq))
		return dec, false
	}
	metrics.RecordDetectionAccepted()

	c := model.Crossing{
		ID:            uuid.NewString(),
		Camera:        f.Camera,
		At:            f.CapturedAt,
		MotionPixels:  dec.Measurement.MotionPixels,
		ConditionsMet: dec.ConditionsMet,
	}
	if !w.out.Enqueue(ctx, c) {
		w.logger.Warn(ctx, "crossing dropped, queue unavailable", logger.String("crossing_id", c.ID))
		return dec, false
	}
	w.accepted.Add(1)
	w.logger.Info(ctx, "crossing detected",
		logger.String("crossing_id", c.ID),
		logger.Int("motion_pixels", c.MotionPixels),
		logger.Int("conditions_met", c.ConditionsMet),
		logger.String("detector", dec.Detector),
	)
	return dec, true
}

// SetDetector swaps the running detector.
func (w *DetectWorker) SetDetector(det detection.Detector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detector = det
	w.hasDec = false
}

// Detector returns the running detector.
func (w *DetectWorker) Detector() detection.Detector {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.detector
}

// Latest returns the most recent decision, or false before the first frame.
func (w *DetectWorker) Latest() (detection.Decision, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.hasDec
}

// Processed returns the number of frames examined.
func (w *DetectWorker) Processed() uint64 { return w.processed.Load() }

// Accepted returns the number of crossings handed to the queue.
func (w *DetectWorker) Accepted() uint64 { return w.accepted.Load() }
