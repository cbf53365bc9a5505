// Package service wires the capture, detection, timing and storage pipeline
// and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/adapters/mq/queue"
	"github.com/okian/laptimer/internal/adapters/mq/worker"
	"github.com/okian/laptimer/internal/adapters/repository"
	"github.com/okian/laptimer/internal/config"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/dedupe"
	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/timeutil"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// Service implements the API dependencies for the lap timer.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	clock  timeutil.Clock
	logger logger.Logger

	// Injected sources replace the configured cameras.
	sources    map[string]camera.Source
	openWebcam WebcamOpener

	// Core components
	store     repository.Store
	tuner     *detection.Tuner
	gate      *cooldown.Gate
	race      *race.Race
	crossings *queue.InMemoryQueue
	slots     map[string]*camera.Slot
	capturers []*camera.Capturer
	detect    *worker.DetectWorker
	laps      *worker.LapWorker
	sink      *resultSink
	deduper   dedupe.Deduper

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the rig configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for frame timestamps, cooldown and lap timing.
func WithClock(c timeutil.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSource replaces the configured source of one camera.
func WithSource(cameraName string, src camera.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.sources[cameraName] = src
		}
	}
}

// WebcamOpener opens capture device index for the named camera.
type WebcamOpener func(name string, index, width, height, fps int) (camera.Source, error)

// WithWebcamOpener replaces the OpenCV device opener used by the webcam source.
func WithWebcamOpener(open WebcamOpener) Option {
	return func(s *Service) {
		if open != nil {
			s.openWebcam = open
		}
	}
}

// WithStore uses store instead of opening the configured one.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:        config.New(),
		clock:      timeutil.RealClock{},
		sources:    make(map[string]camera.Source),
		openWebcam: camera.NewWebcamSource,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	return s
}

// Start opens the store and cameras and starts the capture, detect and lap
// goroutines. They run until Stop is called or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting lap timer service...")

	if s.store == nil {
		store, err := repository.Open(ctx, cfg.Store, cfg.DataDir, cfg.SQLitePath,
			repository.WithLogger(s.logger.Named("repository")))
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Store, err)
		}
		s.store = store
	}
	s.logger.Info(ctx, "result store ready",
		logger.String("store", cfg.Store),
		logger.Int("results", s.store.Count(ctx)),
	)

	settings := cfg.Thresholds()
	s.tuner = detection.NewTuner(settings)
	det, err := detection.New(settings.Detector, s.tuner)
	if errors.Is(err, detection.ErrOpenCVUnavailable) {
		s.logger.Warn(ctx, "detector unavailable, falling back",
			logger.String("detector", settings.Detector),
			logger.String("fallback", detection.KindVote),
		)
		settings.Detector = detection.KindVote
		s.tuner = detection.NewTuner(settings)
		det, err = detection.New(settings.Detector, s.tuner)
	}
	if err != nil {
		return err
	}
	if settings.ConsistencyWindow > 0 && !detection.UsesConsistency(settings.Detector) {
		s.logger.Warn(ctx, "consistency_window is ignored by this detector",
			logger.String("detector", settings.Detector),
			logger.Int("window", settings.ConsistencyWindow),
		)
	}

	s.gate = cooldown.NewGate(
		cooldown.WithInterval(settings.Cooldown),
		cooldown.WithClock(s.clock),
	)
	s.tuner.OnChange(func(st detection.Settings) {
		s.gate.SetInterval(st.Cooldown)
	})

	s.race = race.New(
		race.WithMaxLaps(cfg.Race.MaxLaps),
		race.WithAutoStart(cfg.Race.AutoStart),
		race.WithHideTimerLap(cfg.Race.HideTimerLap),
		race.WithMinLapTime(cfg.Race.MinLap()),
		race.WithClock(s.clock),
	)
	s.crossings = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.sink = newResultSink(s.store, cfg.DataDir, s.logger.Named("results"))

	s.slots = map[string]*camera.Slot{
		model.CameraStartLine: camera.NewSlot(model.CameraStartLine),
		model.CameraOverview:  camera.NewSlot(model.CameraOverview),
	}
	s.capturers = s.capturers[:0]
	for _, name := range []string{model.CameraStartLine, model.CameraOverview} {
		src, err := s.openSource(ctx, name)
		if err != nil {
			s.closeSources()
			return fmt.Errorf("open %s camera: %w", name, err)
		}
		s.sources[name] = src
		s.capturers = append(s.capturers, camera.NewCapturer(src, s.slots[name],
			camera.WithFPS(cfg.Camera.FPS),
			camera.WithCaptureClock(s.clock),
			camera.WithCaptureLogger(s.logger.Named("capture").Named(name)),
		))
	}

	s.detect = worker.NewDetectWorker(s.slots[model.CameraStartLine], det, s.gate, s.crossings,
		worker.WithLogger(s.logger.Named("detect")))
	s.laps = worker.NewLapWorker(s.crossings, s.race, s.sink, s.snapshot,
		worker.WithLogger(s.logger.Named("laps")))
	s.laps.OnOutcome(s.announce)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, c := range s.capturers {
		s.wg.Add(1)
		go func(c *camera.Capturer) {
			defer s.wg.Done()
			if err := c.Run(runCtx); err != nil {
				s.logger.Error(runCtx, "capture failed", logger.Error(err))
			}
		}(c)
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.detect.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.laps.Run(runCtx)
	}()

	metrics.UpdateRaceState(int(model.RaceIdle))
	s.started = true
	s.logger.Info(ctx, "lap timer service started",
		logger.String("source", cfg.Camera.Source),
		logger.String("detector", settings.Detector),
		logger.Int("maxLaps", cfg.Race.MaxLaps),
		logger.Duration("cooldown", settings.Cooldown),
		logger.Int("queueSize", cfg.QueueSize),
	)
	return nil
}

// openSource returns the injected source for name or builds the configured one.
// A webcam that cannot be opened falls back to the synthetic scene.
func (s *Service) openSource(ctx context.Context, name string) (camera.Source, error) {
	if src, ok := s.sources[name]; ok {
		return src, nil
	}
	cc := s.cfg.Camera
	switch cc.Source {
	case config.SourceWebcam:
		index := cc.StartlineCameraIndex
		if name == model.CameraOverview {
			index = cc.OverviewCameraIndex
		}
		src, err := s.openWebcam(name, index, cc.FrameWidth, cc.FrameHeight, cc.FPS)
		if !errors.Is(err, camera.ErrOpenCVUnavailable) && !errors.Is(err, camera.ErrCameraOpen) {
			return src, err
		}
		s.logger.Warn(ctx, "webcam capture unavailable, using synthetic scene",
			logger.String("camera", name), logger.Int("index", index), logger.Error(err))
	case config.SourceImages:
		dir := cc.ImageDir
		if name == model.CameraOverview {
			dir = filepath.Join(cc.ImageDir, model.CameraOverview)
		}
		src, err := camera.NewImageDirSource(name, dir, cc.Loop)
		if err == nil || name == model.CameraStartLine {
			return src, err
		}
		s.logger.Info(ctx, "no overview images, using synthetic scene", logger.String("dir", dir))
	}
	return camera.NewSyntheticSource(name,
		camera.WithView(name),
		camera.WithFrameSize(cc.FrameWidth, cc.FrameHeight),
		camera.WithSyntheticFPS(cc.FPS),
		camera.WithLoop(cc.Loop),
	), nil
}

func (s *Service) closeSources() {
	for name, src := range s.sources {
		if err := src.Close(); err != nil {
			s.logger.Warn(context.Background(), "camera close failed",
				logger.String("camera", name), logger.Error(err))
		}
	}
}

// snapshot records the thresholds a result was timed with.
func (s *Service) snapshot() model.DetectionSnapshot {
	return s.tuner.Get().Snapshot()
}

// announce logs the start and finish signals of a race.
func (s *Service) announce(c model.Crossing, out race.Outcome) {
	ctx := context.Background()
	switch out.Kind {
	case race.Started:
		s.logger.Info(ctx, "start signal", logger.Bool("manual", c.Manual))
	case race.Finished:
		s.logger.Info(ctx, "finish signal", logger.Int("laps", out.Lap.Number))
	case race.LapCompleted:
		if out.BestLap {
			s.logger.Info(ctx, "new best lap",
				logger.Int("lap", out.Lap.Number),
				logger.Float64("seconds", out.Lap.Seconds()),
			)
		}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping lap timer service...")

	// Detection stops before the queue closes; the lap worker then drains
	// what is left.
	if err := s.detect.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "detect worker shutdown", logger.Error(err))
	}
	_ = s.crossings.Close()
	select {
	case <-s.laps.Done():
	case <-ctx.Done():
		s.logger.Warn(ctx, "lap worker did not drain before shutdown timeout")
	}
	s.cancel()
	s.wg.Wait()

	s.closeSources()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "lap timer service stopped")
}

