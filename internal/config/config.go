// Package config defines the rig configuration and how it is loaded.
//
// The file layout matches the rig's config.json: camera, detection and race
// settings live in their own sections. Times in the file are seconds.
package config

import (
	"time"

	"github.com/okian/laptimer/internal/domain/detection"
)

// Store kinds.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Camera source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceImages    = "images"
	SourceWebcam    = "webcam"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataDir holds result files, charts and screenshots.
	DataDir string `koanf:"data_dir"`

	// Store selects the result store: json, sqlite or memory.
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// MaxResultsLimit caps GET /results?limit and GET /leaderboard?limit.
	MaxResultsLimit int `koanf:"max_results_limit"`

	// QueueSize bounds the crossing queue between the detect and lap workers.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize is how many crossing idempotency keys are remembered. Zero or
	// less remembers every key.
	DedupeSize int `koanf:"dedupe_size"`

	Camera    CameraSettings    `koanf:"camera_settings"`
	Detection DetectionSettings `koanf:"detection_settings"`
	Race      RaceSettings      `koanf:"race_settings"`
}

// CameraSettings selects and sizes the frame sources.
type CameraSettings struct {
	Source               string `koanf:"source"`
	OverviewCameraIndex  int    `koanf:"overview_camera_index"`
	StartlineCameraIndex int    `koanf:"startline_camera_index"`
	FrameWidth           int    `koanf:"frame_width"`
	FrameHeight          int    `koanf:"frame_height"`
	FPS                  int    `koanf:"fps"`
	ImageDir             string `koanf:"image_dir"`
	Loop                 bool   `koanf:"loop"`
}

// DetectionSettings are the start-line detection thresholds.
type DetectionSettings struct {
	Detector               string  `koanf:"detector"`
	MotionPixelsThreshold  int     `koanf:"motion_pixels_threshold"`
	MinContourArea         float64 `koanf:"min_contour_area"`
	MotionAreaRatioMin     float64 `koanf:"motion_area_ratio_min"`
	MotionAreaRatioMax     float64 `koanf:"motion_area_ratio_max"`
	MinContourCount        int     `koanf:"min_contour_count"`
	MinAvgContourArea      float64 `koanf:"min_avg_contour_area"`
	MinMotionDensity       float64 `koanf:"min_motion_density"`
	ConditionsRequired     int     `koanf:"conditions_required"`
	PixelDiffThreshold     int     `koanf:"pixel_diff_threshold"`
	BackgroundLearningRate float64 `koanf:"background_learning_rate"`
	WarmupFrames           int     `koanf:"warmup_frames"`
	BandTop                float64 `koanf:"band_top"`
	BandBottom             float64 `koanf:"band_bottom"`
	ConsistencyWindow      int     `koanf:"consistency_window"`
	ConsistencyMaxCV       float64 `koanf:"consistency_max_cv"`
}

// RaceSettings control lap counting. Times are seconds.
type RaceSettings struct {
	MaxLaps           int     `koanf:"max_laps"`
	DetectionCooldown float64 `koanf:"detection_cooldown"`
	AutoStart         bool    `koanf:"auto_start"`
	HideTimerLap      int     `koanf:"hide_timer_lap"`
	MinLapTime        float64 `koanf:"min_lap_time"`
}

// New returns a Config populated with defaults.
func New() *Config {
	d := detection.DefaultSettings()
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		DataDir:         "data",
		Store:           StoreJSON,
		SQLitePath:      "data/laptimer.db",
		MaxResultsLimit: 100,
		QueueSize:       64,
		DedupeSize:      1024,
		Camera: CameraSettings{
			Source:               SourceSynthetic,
			OverviewCameraIndex:  0,
			StartlineCameraIndex: 1,
			FrameWidth:           640,
			FrameHeight:          480,
			FPS:                  30,
			Loop:                 true,
		},
		Detection: DetectionSettings{
			Detector:               d.Detector,
			MotionPixelsThreshold:  d.MotionPixelsThreshold,
			MinContourArea:         d.MinContourArea,
			MotionAreaRatioMin:     d.MotionAreaRatioMin,
			MotionAreaRatioMax:     d.MotionAreaRatioMax,
			MinContourCount:        d.MinContourCount,
			MinAvgContourArea:      d.MinAvgContourArea,
			MinMotionDensity:       d.MinMotionDensity,
			ConditionsRequired:     d.ConditionsRequired,
			PixelDiffThreshold:     d.PixelDiffThreshold,
			BackgroundLearningRate: d.LearningRate,
			WarmupFrames:           d.WarmupFrames,
			BandTop:                d.BandTop,
			BandBottom:             d.BandBottom,
			ConsistencyWindow:      d.ConsistencyWindow,
			ConsistencyMaxCV:       d.ConsistencyMaxCV,
		},
		Race: RaceSettings{
			MaxLaps:           3,
			DetectionCooldown: d.Cooldown.Seconds(),
			AutoStart:         true,
			HideTimerLap:      3,
		},
	}
}

// Thresholds converts the detection and cooldown settings into detector settings.
func (c *Config) Thresholds() detection.Settings {
	d := c.Detection
	return detection.Settings{
		Detector:              d.Detector,
		MotionPixelsThreshold: d.MotionPixelsThreshold,
		MinContourArea:        d.MinContourArea,
		MotionAreaRatioMin:    d.MotionAreaRatioMin,
		MotionAreaRatioMax:    d.MotionAreaRatioMax,
		MinContourCount:       d.MinContourCount,
		MinAvgContourArea:     d.MinAvgContourArea,
		MinMotionDensity:      d.MinMotionDensity,
		ConditionsRequired:    d.ConditionsRequired,
		PixelDiffThreshold:    d.PixelDiffThreshold,
		LearningRate:          d.BackgroundLearningRate,
		WarmupFrames:          d.WarmupFrames,
		BandTop:               d.BandTop,
		BandBottom:            d.BandBottom,
		ConsistencyWindow:     d.ConsistencyWindow,
		ConsistencyMaxCV:      d.ConsistencyMaxCV,
		Cooldown:              c.Race.Cooldown(),
	}
}

// Cooldown returns the detection cooldown as a duration.
func (r RaceSettings) Cooldown() time.Duration {
	return seconds(r.DetectionCooldown)
}

// MinLap returns the minimum lap time as a duration.
func (r RaceSettings) MinLap() time.Duration {
	return seconds(r.MinLapTime)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
