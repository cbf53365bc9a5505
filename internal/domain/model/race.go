// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Camera roles used by the rig.
const (
	CameraStartLine = "startline"
	CameraOverview  = "overview"
)

// Frame is a single grayscale capture from one camera.
type Frame struct {
	Camera     string
	Seq        uint64 // increases by one per captured frame
	Image      *image.Gray
	CapturedAt time.Time
}

// Crossing is an accepted start-line detection flowing to the lap worker.
type Crossing struct {
	ID            string
	Camera        string
	At            time.Time
	MotionPixels  int
	ConditionsMet int
	Manual        bool // operator trigger rather than the detector
}

// Lap is one completed lap. Duration is measured from the previous crossing.
type Lap struct {
	Number   int           `json:"number"`
	Duration time.Duration `json:"-"`
	EndedAt  time.Time     `json:"ended_at"`
}

// Seconds returns the lap duration in seconds.
func (l Lap) Seconds() float64 { return l.Duration.Seconds() }

// RaceState enumerates race phases.
type RaceState int

const (
	RaceIdle RaceState = iota
	RaceRunning
	RaceFinished
)

func (s RaceState) String() string {
	switch s {
	case RaceIdle:
		return "idle"
	case RaceRunning:
		return "running"
	case RaceFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s RaceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *RaceState) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "idle":
		*s = RaceIdle
	case "running":
		*s = RaceRunning
	case "finished":
		*s = RaceFinished
	default:
		return fmt.Errorf("unknown race state %q", string(b))
	}
	return nil
}

// RaceStatus is a point-in-time view of the race.
type RaceStatus struct {
	State             RaceState
	CurrentLap        int // lap being driven; 0 before start
	MaxLaps           int
	Laps              []Lap
	StartedAt         time.Time
	Elapsed           time.Duration
	CurrentLapElapsed time.Duration
	LastLap           time.Duration
	BestLap           time.Duration
	BestLapNumber     int
	TimerVisible      bool
}

// DetectionSnapshot records the thresholds a race was timed with.
type DetectionSnapshot struct {
	Detector              string  `json:"detector"`
	MotionPixelsThreshold int     `json:"motion_pixels_threshold"`
	MinContourArea        float64 `json:"min_contour_area"`
	MotionAreaRatioMin    float64 `json:"motion_area_ratio_min"`
	MotionAreaRatioMax    float64 `json:"motion_area_ratio_max"`
	ConditionsRequired    int     `json:"conditions_required"`
	PixelDiffThreshold    int     `json:"pixel_diff_threshold"`
	CooldownSeconds       float64 `json:"detection_cooldown"`
}

// RaceResult is the persisted outcome of one race. Times are in seconds.
type RaceResult struct {
	ID                string            `json:"id"`
	Timestamp         time.Time         `json:"timestamp"`
	LapCount          int               `json:"lap_count"`
	LapTimes          []float64         `json:"lap_times"`
	TotalTime         float64           `json:"total_time"`
	AverageLap        float64           `json:"average_lap"`
	BestLap           float64           `json:"best_lap"`
	WorstLap          float64           `json:"worst_lap"`
	BestLapNumber     int               `json:"best_lap_number"`
	MaxLaps           int               `json:"max_laps"`
	Completed         bool              `json:"completed"`
	DetectionSettings DetectionSnapshot `json:"detection_settings"`
}

// LapDurations converts LapTimes back to durations.
func (r RaceResult) LapDurations() []time.Duration {
	out := make([]time.Duration, len(r.LapTimes))
	for i, s := range r.LapTimes {
		out[i] = time.Duration(s * float64(time.Second))
	}
	return out
}
