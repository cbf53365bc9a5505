package replay

import (
	"fmt"
	"time"

	"github.com/okian/laptimer/internal/adapters/camera"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
)

// scenario is a frame source plus what a perfect timer would report for it.
type scenario struct {
	mode     string
	source   camera.Source
	interval time.Duration
	expected []float64
}

func newScenario(cfg *Config) (*scenario, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", cfg.FPS)
	}
	interval := time.Second / time.Duration(cfg.FPS)

	if cfg.ImagesDir != "" {
		src, err := camera.NewImageDirSource(model.CameraStartLine, cfg.ImagesDir, false)
		if err != nil {
			return nil, err
		}
		return &scenario{
			mode:     ModeImages,
			source:   src,
			interval: interval,
			expected: expectedLaps(cfg.Laps),
		}, nil
	}

	if len(cfg.Laps) == 0 {
		return nil, fmt.Errorf("synthetic replay needs at least one lap")
	}
	opts := []camera.SyntheticOption{
		camera.WithLaps(cfg.Laps...),
		camera.WithSyntheticFPS(cfg.FPS),
		camera.WithFrameSize(cfg.Width, cfg.Height),
		camera.WithLoop(false),
	}
	if cfg.Noise > 0 {
		opts = append(opts, camera.WithNoise(cfg.Noise, cfg.Seed))
	}
	src := camera.NewSyntheticSource(model.CameraStartLine, opts...)
	return &scenario{
		mode:     ModeSynthetic,
		source:   src,
		interval: src.FrameInterval(),
		expected: lapsFromCrossings(src.Crossings()),
	}, nil
}

// lapsFromCrossings turns crossing offsets into lap times.
func lapsFromCrossings(crossings []time.Duration) []float64 {
	if len(crossings) < 2 {
		return nil
	}
	out := make([]float64, 0, len(crossings)-1)
	for i := 1; i < len(crossings); i++ {
		out = append(out, laps.Round3((crossings[i] - crossings[i-1]).Seconds()))
	}
	return out
}

func expectedLaps(d []time.Duration) []float64 {
	if len(d) == 0 {
		return nil
	}
	out := laps.Seconds(d)
	for i := range out {
		out[i] = laps.Round3(out[i])
	}
	return out
}
