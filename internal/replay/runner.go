package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/laptimer/internal/adapters/mq/worker"
	"github.com/okian/laptimer/internal/adapters/report"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/timeutil"
	"github.com/okian/laptimer/pkg/logger"
)

// maxReplayLaps keeps the race open so extra detections show up as extra laps.
const maxReplayLaps = 1000

var replayEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Run replays a scenario and verifies the laps the timer reports. Without a
// BaseURL the frames go through the detection and lap pipeline in process on
// a mock clock, so a replay is deterministic and runs faster than real time.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("images", cfg.ImagesDir),
		logger.String("detector", cfg.Detector),
		logger.Int("laps", len(cfg.Laps)),
		logger.Int("fps", cfg.FPS),
		logger.Duration("tolerance", cfg.Tolerance),
		logger.Bool("verbose", cfg.Verbose))

	var (
		rep *Report
		err error
	)
	if cfg.BaseURL != "" {
		rep, err = runRemote(ctx, cfg, stats)
	} else {
		rep, err = runLocal(ctx, cfg, stats)
	}
	if err != nil {
		return nil, err
	}

	if len(rep.Expected) > 0 {
		rep.Verification = Verify(rep.Expected, rep.Detected, cfg.Tolerance)
	} else {
		rep.Verification = Verification{Pass: true}
	}
	logVerification(ctx, rep, cfg.Verbose)

	if cfg.OutputFile != "" {
		if err := saveReport(ctx, cfg.OutputFile, rep); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return rep, nil
}

// pending collects crossings the detect worker hands off during one frame.
type pending struct {
	items []model.Crossing
}

func (p *pending) Enqueue(_ context.Context, c model.Crossing) bool {
	p.items = append(p.items, c)
	return true
}

func (p *pending) drain() []model.Crossing {
	out := p.items
	p.items = nil
	return out
}

func replaySettings(cfg *Config) (detection.Settings, error) {
	s := detection.DefaultSettings()
	if cfg.Detector != "" {
		s.Detector = cfg.Detector
	}
	if cfg.Cooldown > 0 {
		s.Cooldown = cfg.Cooldown
	}
	return s, s.Validate()
}

func runLocal(ctx context.Context, cfg *Config, stats *Stats) (*Report, error) {
	log := logger.Get().Named("replay")

	sc, err := newScenario(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	defer func() {
		if err := sc.source.Close(); err != nil {
			log.Warn(ctx, "failed to close source", logger.Error(err))
		}
	}()

	settings, err := replaySettings(cfg)
	if err != nil {
		return nil, err
	}
	tuner := detection.NewTuner(settings)
	det, err := detection.New(settings.Detector, tuner)
	if err != nil {
		return nil, err
	}

	clock := timeutil.NewMockClock(replayEpoch)
	gate := cooldown.NewGate(cooldown.WithInterval(settings.Cooldown), cooldown.WithClock(clock))
	timer := race.New(race.WithMaxLaps(maxReplayLaps), race.WithClock(clock))
	out := &pending{}

	detect := worker.NewDetectWorker(nil, det, gate, out, worker.WithLogger(log.Named("detect")))
	lapper := worker.NewLapWorker(nil, timer, nil, func() model.DetectionSnapshot {
		return tuner.Get().Snapshot()
	}, worker.WithLogger(log.Named("laps")))

	var crossings []float64
	lapper.OnOutcome(func(c model.Crossing, o race.Outcome) {
		if o.Kind != race.Ignored {
			crossings = append(crossings, laps.Round3(c.At.Sub(replayEpoch).Seconds()))
		}
	})

	for seq := uint64(1); ; seq++ {
		img, err := sc.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", seq, err)
		}
		stats.FramesRead++

		clock.Set(replayEpoch.Add(time.Duration(seq-1) * sc.interval))
		f := model.Frame{
			Camera:     model.CameraStartLine,
			Seq:        seq,
			Image:      detection.ToGray(img),
			CapturedAt: clock.Now(),
		}
		if _, ok := detect.Process(ctx, f); ok && cfg.Verbose {
			log.Debug(ctx, "crossing", logger.Uint64("seq", seq), logger.Duration("at", f.CapturedAt.Sub(replayEpoch)))
		}
		for _, c := range out.drain() {
			if err := lapper.Process(ctx, c); err != nil {
				return nil, err
			}
		}
	}

	stats.FramesProcessed = int(detect.Processed())
	stats.CrossingsAccepted = int(detect.Accepted())
	stats.CrossingsSuppressed = int(gate.Suppressed())

	rep := &Report{
		Mode:       sc.mode,
		Detector:   det.Name(),
		Expected:   sc.expected,
		Crossings:  crossings,
		Frames:     stats.FramesProcessed,
		Accepted:   stats.CrossingsAccepted,
		Suppressed: stats.CrossingsSuppressed,
		Settings:   tuner.Get(),
	}

	_ = timer.Stop()
	res, err := timer.Result(tuner.Get().Snapshot())
	switch {
	case errors.Is(err, race.ErrNoLaps):
	case err != nil:
		return nil, err
	default:
		rep.Result = &res
		rep.Detected = res.LapTimes
	}
	return rep, nil
}

// saveReport writes the report as JSON and, when a race was timed, its lap chart.
func saveReport(ctx context.Context, path string, rep *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Get().Info(ctx, "report saved", logger.String("filename", path))

	if rep.Result == nil {
		return nil
	}
	chart := report.ChartPath(path)
	if err := report.SaveLapChart(chart, *rep.Result); err != nil {
		return fmt.Errorf("failed to save lap chart: %w", err)
	}
	logger.Get().Info(ctx, "lap chart saved", logger.String("filename", chart))
	return nil
}

// displayFinalStats prints the final replay statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var fps float64
	if stats.Duration > 0 {
		fps = float64(stats.FramesProcessed) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("framesRead", stats.FramesRead),
		logger.Int("framesProcessed", stats.FramesProcessed),
		logger.Int("crossingsAccepted", stats.CrossingsAccepted),
		logger.Int("crossingsSuppressed", stats.CrossingsSuppressed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("framesPerSecond", fps))
}
