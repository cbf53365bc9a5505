// Package detection turns start-line frames into crossing decisions.
package detection

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/laptimer/internal/domain/model"
)

// Detector kinds accepted by New.
const (
	KindVote       = "vote"
	KindFrameDiff  = "framediff"
	KindMultiFrame = "multiframe"
	KindFlow       = "flow"
	KindMOG2       = "mog2"
)

// Kinds lists every detector kind.
func Kinds() []string {
	return []string{KindVote, KindFrameDiff, KindMultiFrame, KindFlow, KindMOG2}
}

// Tuning parameters accepted by Adjust.
const (
	ParamMotionPixels = "motion_pixels"
	ParamContourArea  = "contour_area"
	ParamConditions   = "conditions"
	ParamPixelDiff    = "pixel_diff"
	ParamCooldown     = "cooldown"
)

// Adjustment steps and floors.
const (
	motionPixelsStep = 50
	contourAreaStep  = 50
	pixelDiffStep    = 5
	cooldownStep     = 500 * time.Millisecond

	minMotionPixels = 50
	minContourArea  = 50
	minPixelDiff    = 5
	minCooldown     = 500 * time.Millisecond

	// MaxConditions is the number of vote conditions.
	MaxConditions = 6
)

// Settings holds detection thresholds. The zero value is not usable; start from DefaultSettings.
type Settings struct {
	Detector              string        `json:"detector"`
	MotionPixelsThreshold int           `json:"motion_pixels_threshold"`
	MinContourArea        float64       `json:"min_contour_area"`
	MotionAreaRatioMin    float64       `json:"motion_area_ratio_min"`
	MotionAreaRatioMax    float64       `json:"motion_area_ratio_max"`
	MinContourCount       int           `json:"min_contour_count"`
	MinAvgContourArea     float64       `json:"min_avg_contour_area"`
	MinMotionDensity      float64       `json:"min_motion_density"`
	ConditionsRequired    int           `json:"conditions_required"`
	PixelDiffThreshold    int           `json:"pixel_diff_threshold"`
	LearningRate          float64       `json:"background_learning_rate"`
	WarmupFrames          int           `json:"warmup_frames"`
	BandTop               float64       `json:"band_top"`
	BandBottom            float64       `json:"band_bottom"`
	ConsistencyWindow     int           `json:"consistency_window"`
	ConsistencyMaxCV      float64       `json:"consistency_max_cv"`
	Cooldown              time.Duration `json:"-"`
}

// DefaultSettings returns the thresholds the rig ships with.
func DefaultSettings() Settings {
	return Settings{
		Detector:              KindVote,
		MotionPixelsThreshold: 500,
		MinContourArea:        300,
		MotionAreaRatioMin:    0.001,
		MotionAreaRatioMax:    0.8,
		MinContourCount:       3,
		MinAvgContourArea:     100,
		MinMotionDensity:      100,
		ConditionsRequired:    3,
		PixelDiffThreshold:    20,
		LearningRate:          0.01,
		WarmupFrames:          30,
		BandTop:               0.4,
		BandBottom:            0.6,
		ConsistencyMaxCV:      2.0,
		Cooldown:              2500 * time.Millisecond,
	}
}

// Validate reports the first invalid threshold.
func (s Settings) Validate() error {
	switch {
	case s.MotionPixelsThreshold < 0:
		return fmt.Errorf("%w: motion_pixels_threshold must be >= 0", ErrInvalidSettings)
	case s.MinContourArea < 0:
		return fmt.Errorf("%w: min_contour_area must be >= 0", ErrInvalidSettings)
	case s.MotionAreaRatioMin < 0 || s.MotionAreaRatioMin >= s.MotionAreaRatioMax:
		return fmt.Errorf("%w: motion_area_ratio_min must be in [0, motion_area_ratio_max)", ErrInvalidSettings)
	case s.ConditionsRequired < 1 || s.ConditionsRequired > MaxConditions:
		return fmt.Errorf("%w: conditions_required must be in 1..%d", ErrInvalidSettings, MaxConditions)
	case s.PixelDiffThreshold < 0 || s.PixelDiffThreshold > 255:
		return fmt.Errorf("%w: pixel_diff_threshold must be in 0..255", ErrInvalidSettings)
	case s.LearningRate <= 0 || s.LearningRate > 1:
		return fmt.Errorf("%w: background_learning_rate must be in (0, 1]", ErrInvalidSettings)
	case s.WarmupFrames < 0:
		return fmt.Errorf("%w: warmup_frames must be >= 0", ErrInvalidSettings)
	case s.BandTop < 0 || s.BandTop >= s.BandBottom || s.BandBottom > 1:
		return fmt.Errorf("%w: band must satisfy 0 <= top < bottom <= 1", ErrInvalidSettings)
	case s.ConsistencyWindow < 0 || s.ConsistencyWindow > consistencyHistory:
		return fmt.Errorf("%w: consistency_window must be in 0..%d", ErrInvalidSettings, consistencyHistory)
	case s.ConsistencyWindow > 0 && s.ConsistencyMaxCV <= 0:
		return fmt.Errorf("%w: consistency_max_cv must be > 0", ErrInvalidSettings)
	case s.Cooldown < 0:
		return fmt.Errorf("%w: cooldown must be >= 0", ErrInvalidSettings)
	}
	return nil
}

// Direction of a runtime adjustment.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

// ParseDirection accepts "up"/"+" and "down"/"-".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "+", "increase":
		return Up, nil
	case "down", "-", "decrease":
		return Down, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrUnknownParam, s)
}

// Adjust returns a copy of s with one threshold stepped up or down.
func (s Settings) Adjust(param string, dir Direction) (Settings, error) {
	step := int(dir)
	switch param {
	case ParamMotionPixels:
		s.MotionPixelsThreshold = max(minMotionPixels, s.MotionPixelsThreshold+step*motionPixelsStep)
	case ParamContourArea:
		s.MinContourArea = max(minContourArea, s.MinContourArea+float64(step*contourAreaStep))
	case ParamConditions:
		s.ConditionsRequired = min(MaxConditions, max(1, s.ConditionsRequired+step))
	case ParamPixelDiff:
		s.PixelDiffThreshold = min(255, max(minPixelDiff, s.PixelDiffThreshold+step*pixelDiffStep))
	case ParamCooldown:
		s.Cooldown = max(minCooldown, s.Cooldown+time.Duration(step)*cooldownStep)
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownParam, param)
	}
	return s, nil
}

// Snapshot captures the thresholds recorded alongside a race result.
func (s Settings) Snapshot() model.DetectionSnapshot {
	return model.DetectionSnapshot{
		Detector:              s.Detector,
		MotionPixelsThreshold: s.MotionPixelsThreshold,
		MinContourArea:        s.MinContourArea,
		MotionAreaRatioMin:    s.MotionAreaRatioMin,
		MotionAreaRatioMax:    s.MotionAreaRatioMax,
		ConditionsRequired:    s.ConditionsRequired,
		PixelDiffThreshold:    s.PixelDiffThreshold,
		CooldownSeconds:       s.Cooldown.Seconds(),
	}
}

// Tuner shares settings between the detect loop and the operator.
type Tuner struct {
	mu        sync.RWMutex
	settings  Settings
	listeners []func(Settings)
}

// NewTuner returns a tuner holding s.
func NewTuner(s Settings) *Tuner {
	return &Tuner{settings: s}
}

// Get returns the current settings.
func (t *Tuner) Get() Settings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings
}

// Set replaces the settings after validation.
func (t *Tuner) Set(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.settings = s
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners, s)
	return nil
}

// Adjust steps one parameter and returns the new settings.
func (t *Tuner) Adjust(param string, dir Direction) (Settings, error) {
	t.mu.Lock()
	next, err := t.settings.Adjust(param, dir)
	if err != nil {
		cur := t.settings
		t.mu.Unlock()
		return cur, err
	}
	t.settings = next
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners, next)
	return next, nil
}

// OnChange registers fn to run after every successful Set or Adjust.
func (t *Tuner) OnChange(fn func(Settings)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func notify(listeners []func(Settings), s Settings) {
	for _, fn := range listeners {
		fn(s)
	}
}
