package replay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/laptimer/internal/domain/detection"
	"github.com/okian/laptimer/internal/domain/model"
)

// Config holds configuration for a replay run
type Config struct {
	Laps      []time.Duration // Lap durations the synthetic car drives
	FPS       int             // Frames per second of the scene
	Width     int             // Frame width in pixels
	Height    int             // Frame height in pixels
	Noise     int             // Per-pixel noise amplitude
	Seed      int64           // Noise seed
	Detector  string          // Detector kind
	ImagesDir string          // Replay recorded frames instead of the synthetic scene
	Tolerance time.Duration   // Allowed error per lap
	Cooldown  time.Duration   // Cooldown between accepted crossings

	BaseURL string        // Drive a running rig instead of the local pipeline
	Speed   float64       // Time compression for remote runs
	Timeout time.Duration // HTTP request timeout

	OutputFile string // Report file
	LogFile    string // Log file for replay output
	Verbose    bool   // Enable verbose logging
}

// DefaultConfig returns a three lap synthetic replay.
func DefaultConfig() *Config {
	return &Config{
		Laps:      []time.Duration{12 * time.Second, 10500 * time.Millisecond, 11200 * time.Millisecond},
		FPS:       DefaultFPS,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Detector:  detection.KindVote,
		Tolerance: DefaultTolerance,
		Cooldown:  detection.DefaultSettings().Cooldown,
		Speed:     1,
		Timeout:   DefaultTimeout,
	}
}

// Stats holds replay statistics
type Stats struct {
	FramesRead          int
	FramesProcessed     int
	CrossingsAccepted   int
	CrossingsSuppressed int
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}

// Report is the outcome of a replay, written to the output file.
type Report struct {
	Mode         string             `json:"mode"`
	Detector     string             `json:"detector"`
	Expected     []float64          `json:"expected_laps"`
	Detected     []float64          `json:"detected_laps"`
	Crossings    []float64          `json:"crossings"`
	Verification Verification       `json:"verification"`
	Result       *model.RaceResult  `json:"result,omitempty"`
	Frames       int                `json:"frames"`
	Accepted     int                `json:"crossings_accepted"`
	Suppressed   int                `json:"crossings_suppressed"`
	Settings     detection.Settings `json:"settings"`
}

// ParseLaps parses a comma separated list of durations such as "12s,10.5s".
func ParseLaps(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid lap %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid lap %q: must be positive", part)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseSize parses a frame size such as "320x240".
func ParseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return width, height, nil
}
