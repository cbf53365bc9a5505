package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/laptimer/internal/domain/detection"
)

// Environment variables read by Load.
const (
	EnvPrefix = "LAPTIMER_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file named by LAPTIMER_CONFIG (YAML, or JSON for a .json extension)
//  3. env (prefix LAPTIMER_, "__" separates sections)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
		if err := applyLegacyKeys(k); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LAPTIMER_RACE_SETTINGS__MAX_LAPS -> race_settings.max_laps
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvConfig {
			return ""
		}
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// legacyKeys maps keys written by the rig's calibration tool to their
// current names. A current key present in the same file wins.
var legacyKeys = []struct{ from, to string }{
	{"detection_settings.detection_conditions_required", "detection_settings.conditions_required"},
	{"camera_overview_id", "camera_settings.overview_camera_index"},
	{"camera_start_line_id", "camera_settings.startline_camera_index"},
}

func applyLegacyKeys(k *koanf.Koanf) error {
	for _, key := range legacyKeys {
		if !k.Exists(key.from) || k.Exists(key.to) {
			continue
		}
		if err := k.Set(key.to, k.Get(key.from)); err != nil {
			return fmt.Errorf("%s: %w", key.from, err)
		}
	}
	return nil
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Parser()
	}
	return yaml.Parser()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxResultsLimit < 1:
		return fmt.Errorf("%w: max_results_limit must be >= 1", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1", ErrInvalidConfig)
	case c.Store != StoreJSON && c.Store != StoreSQLite && c.Store != StoreMemory:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Camera.FrameWidth <= 0 || c.Camera.FrameHeight <= 0:
		return fmt.Errorf("%w: frame size must be positive", ErrInvalidConfig)
	case c.Camera.FPS <= 0:
		return fmt.Errorf("%w: fps must be positive", ErrInvalidConfig)
	case c.Camera.Source != SourceSynthetic && c.Camera.Source != SourceImages && c.Camera.Source != SourceWebcam:
		return fmt.Errorf("%w: unknown camera source %q", ErrInvalidConfig, c.Camera.Source)
	case c.Camera.Source == SourceImages && c.Camera.ImageDir == "":
		return fmt.Errorf("%w: image_dir is required for the images source", ErrInvalidConfig)
	case !slices.Contains(detection.Kinds(), c.Detection.Detector):
		return fmt.Errorf("%w: unknown detector %q", ErrInvalidConfig, c.Detection.Detector)
	case c.Race.MaxLaps < 1:
		return fmt.Errorf("%w: max_laps must be >= 1", ErrInvalidConfig)
	case c.Race.HideTimerLap < 0:
		return fmt.Errorf("%w: hide_timer_lap must be >= 0", ErrInvalidConfig)
	case c.Race.DetectionCooldown < 0 || c.Race.MinLapTime < 0:
		return fmt.Errorf("%w: race times must be >= 0", ErrInvalidConfig)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
