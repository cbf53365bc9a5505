package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/adapters/mq/queue"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

// running returns an error unless Start has completed.
func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// RaceStatus returns the current race as of now.
func (s *Service) RaceStatus() model.RaceStatus {
	if s.running() != nil {
		return model.RaceStatus{MaxLaps: s.cfg.Race.MaxLaps}
	}
	return s.race.Status(s.clock.Now())
}

// StartRace starts a race immediately, without waiting for a crossing.
func (s *Service) StartRace(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.race.Start(); err != nil {
		return err
	}
	s.gate.Reset()
	metrics.UpdateRaceState(int(model.RaceRunning))
	s.logger.Info(ctx, "race started by operator")
	return nil
}

// StopRace ends the running race. When at least one lap was driven the
// result is persisted and returned; otherwise the result is nil.
func (s *Service) StopRace(ctx context.Context) (*model.RaceResult, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	if err := s.race.Stop(); err != nil {
		return nil, err
	}
	metrics.UpdateRaceState(int(model.RaceFinished))
	res, err := s.race.Result(s.snapshot())
	if errors.Is(err, race.ErrNoLaps) {
		s.logger.Info(ctx, "race stopped without laps")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.sink.Record(ctx, res); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "race stopped by operator", logger.Int("laps", res.LapCount))
	return &res, nil
}

// ResetRace discards the current race and clears the cooldown.
func (s *Service) ResetRace(ctx context.Context) {
	if s.running() != nil {
		return
	}
	s.race.Reset()
	s.gate.Reset()
	metrics.UpdateRaceState(int(model.RaceIdle))
	s.logger.Info(ctx, "race reset")
}

// TriggerCrossing records an operator crossing. It passes the same cooldown
// gate as detected crossings.
func (s *Service) TriggerCrossing(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	if !s.gate.TryAcquire() {
		metrics.RecordDetectionSuppressed()
		return fmt.Errorf("%w: %s left", cooldown.ErrCoolingDown, s.gate.Remaining())
	}
	c := model.Crossing{
		ID:     uuid.NewString(),
		Camera: model.CameraStartLine,
		At:     s.clock.Now(),
		Manual: true,
	}
	if !s.crossings.Enqueue(ctx, c) {
		if s.crossings.IsClosed() {
			return queue.ErrClosed
		}
		return queue.ErrFull
	}
	s.logger.Debug(ctx, "manual crossing", logger.String("id", c.ID))
	return nil
}

// SeenAndRecord reports whether a crossing idempotency key was already used
// and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	return s.deduper.SeenAndRecord(ctx, key)
}

// Unrecord forgets a key whose crossing was rejected so a retry can use it.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// Screenshot saves PNGs of the latest frame of every camera.
func (s *Service) Screenshot(ctx context.Context) ([]string, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.cfg.DataDir, "screenshots")
	paths, err := camera.SaveScreenshots(dir, s.clock.Now(),
		s.slots[model.CameraStartLine], s.slots[model.CameraOverview])
	if err != nil {
		return paths, err
	}
	s.logger.Info(ctx, "screenshots saved", logger.Int("count", len(paths)), logger.String("dir", dir))
	return paths, nil
}

// Snapshot encodes the latest frame of the named camera.
func (s *Service) Snapshot(_ context.Context, w io.Writer, cameraName, format string) error {
	if err := s.running(); err != nil {
		return err
	}
	slot, ok := s.slots[cameraName]
	if !ok {
		return fmt.Errorf("%w: %q", camera.ErrUnknownCamera, cameraName)
	}
	return camera.EncodeSnapshot(w, slot, format)
}

// Tuning returns the current detection settings.
func (s *Service) Tuning() detection.Settings {
	if s.running() != nil {
		return s.cfg.Thresholds()
	}
	return s.tuner.Get()
}

// AdjustTuning steps one threshold up or down.
func (s *Service) AdjustTuning(ctx context.Context, param string, dir detection.Direction) (detection.Settings, error) {
	if err := s.running(); err != nil {
		return detection.Settings{}, err
	}
	next, err := s.tuner.Adjust(param, dir)
	if err != nil {
		return next, err
	}
	s.logger.Info(ctx, "detection threshold adjusted",
		logger.String("param", param),
		logger.Int("direction", int(dir)),
		logger.Any("settings", next.Snapshot()),
	)
	return next, nil
}

// UpdateTuning replaces the detection settings. A new detector kind swaps the
// running detector, which starts without learned state.
func (s *Service) UpdateTuning(ctx context.Context, next detection.Settings) (detection.Settings, error) {
	if err := s.running(); err != nil {
		return detection.Settings{}, err
	}
	if next.Detector == "" {
		next.Detector = detection.KindVote
	}
	if err := next.Validate(); err != nil {
		return s.tuner.Get(), err
	}
	var swap detection.Detector
	if next.Detector != s.detect.Detector().Name() {
		det, err := detection.New(next.Detector, s.tuner)
		if err != nil {
			return s.tuner.Get(), err
		}
		swap = det
	}
	if err := s.tuner.Set(next); err != nil {
		return s.tuner.Get(), err
	}
	if swap != nil {
		s.detect.SetDetector(swap)
		s.logger.Info(ctx, "detector switched", logger.String("detector", swap.Name()))
	}
	s.logger.Info(ctx, "detection settings updated", logger.Any("settings", next.Snapshot()))
	return next, nil
}

// LatestDecision returns the decision for the most recent start-line frame.
func (s *Service) LatestDecision() (detection.Decision, bool) {
	if s.running() != nil {
		return detection.Decision{}, false
	}
	return s.detect.Latest()
}

// ListResults returns up to limit stored results, newest first.
func (s *Service) ListResults(ctx context.Context, limit int) ([]model.RaceResult, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.List(ctx, limit)
}

// GetResult returns one stored result.
func (s *Service) GetResult(ctx context.Context, id string) (model.RaceResult, error) {
	if err := s.running(); err != nil {
		return model.RaceResult{}, err
	}
	return s.store.Get(ctx, id)
}

// BestLaps returns the n fastest laps across stored results.
func (s *Service) BestLaps(ctx context.Context, n int) ([]types.LapEntry, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.BestLaps(ctx, n)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"store":     s.cfg.Store,
		"source":    s.cfg.Camera.Source,
		"queueSize": s.cfg.QueueSize,
		"maxLaps":   s.cfg.Race.MaxLaps,
	}
	stats["idempotencyKeys"] = s.deduper.Size()
	if !s.started {
		return stats
	}

	ctx := context.Background()
	st := s.race.Status(s.clock.Now())
	stats["raceState"] = st.State.String()
	stats["currentLap"] = st.CurrentLap
	stats["detector"] = s.detect.Detector().Name()
	stats["framesProcessed"] = s.detect.Processed()
	stats["crossingsAccepted"] = s.detect.Accepted()
	stats["crossingsSuppressed"] = s.gate.Suppressed()
	stats["cooldown"] = s.gate.Interval().String()
	stats["queueLength"] = s.crossings.Len(ctx)
	stats["storedRaces"] = s.store.Count(ctx)
	sources := make(map[string]string, len(s.sources))
	for name, src := range s.sources {
		sources[name] = src.Name()
	}
	stats["sources"] = sources
	return stats
}
