package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/laptimer/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DataDir, convey.ShouldEqual, "data")
				convey.So(cfg.Race.DetectionCooldown, convey.ShouldEqual, 2.5)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LAPTIMER_ADDR", ":8080")
			_ = os.Setenv("LAPTIMER_STORE", "sqlite")
			_ = os.Setenv("LAPTIMER_RACE_SETTINGS__MAX_LAPS", "5")
			_ = os.Setenv("LAPTIMER_RACE_SETTINGS__AUTO_START", "false")
			_ = os.Setenv("LAPTIMER_DETECTION_SETTINGS__MIN_CONTOUR_AREA", "450")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.Race.MaxLaps, convey.ShouldEqual, 5)
				convey.So(cfg.Race.AutoStart, convey.ShouldBeFalse)
				convey.So(cfg.Detection.MinContourArea, convey.ShouldEqual, 450.0)
				convey.So(cfg.Detection.MotionPixelsThreshold, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading the rig's JSON config file", func() {
			path := writeConfigFile(t, "config.json", `{
  "camera_settings": {"overview_camera_index": 2, "startline_camera_index": 0},
  "detection_settings": {"motion_pixels_threshold": 800, "conditions_required": 4},
  "race_settings": {"max_laps": 10, "detection_cooldown": 1.5}
}`)
			_ = os.Setenv("LAPTIMER_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its sections merge over the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Camera.OverviewCameraIndex, convey.ShouldEqual, 2)
				convey.So(cfg.Camera.StartlineCameraIndex, convey.ShouldEqual, 0)
				convey.So(cfg.Camera.FrameWidth, convey.ShouldEqual, 640)
				convey.So(cfg.Detection.MotionPixelsThreshold, convey.ShouldEqual, 800)
				convey.So(cfg.Detection.ConditionsRequired, convey.ShouldEqual, 4)
				convey.So(cfg.Detection.MinContourArea, convey.ShouldEqual, 300.0)
				convey.So(cfg.Race.MaxLaps, convey.ShouldEqual, 10)
				convey.So(cfg.Thresholds().Cooldown.Seconds(), convey.ShouldEqual, 1.5)
			})
		})

		convey.Convey("When loading a file written by the calibration tool", func() {
			path := writeConfigFile(t, "config_calibrated.json", `{
  "camera_overview_id": 0,
  "camera_start_line_id": 2,
  "detection_settings": {
    "motion_pixels_threshold": 700,
    "min_contour_area": 400,
    "detection_conditions_required": 5
  },
  "race_settings": {"max_laps": 10, "detection_cooldown": 5.0},
  "calibration_info": {"calibrated": true}
}`)
			_ = os.Setenv("LAPTIMER_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its legacy keys are honoured", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Detection.MotionPixelsThreshold, convey.ShouldEqual, 700)
				convey.So(cfg.Detection.MinContourArea, convey.ShouldEqual, 400.0)
				convey.So(cfg.Detection.ConditionsRequired, convey.ShouldEqual, 5)
				convey.So(cfg.Thresholds().ConditionsRequired, convey.ShouldEqual, 5)
				convey.So(cfg.Camera.OverviewCameraIndex, convey.ShouldEqual, 0)
				convey.So(cfg.Camera.StartlineCameraIndex, convey.ShouldEqual, 2)
				convey.So(cfg.Race.MaxLaps, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When a file carries both the legacy and the current key", func() {
			path := writeConfigFile(t, "config.json", `{
  "camera_start_line_id": 2,
  "camera_settings": {"startline_camera_index": 3},
  "detection_settings": {"conditions_required": 4, "detection_conditions_required": 6}
}`)
			_ = os.Setenv("LAPTIMER_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then the current key wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Detection.ConditionsRequired, convey.ShouldEqual, 4)
				convey.So(cfg.Camera.StartlineCameraIndex, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading a YAML file with env overrides", func() {
			path := writeConfigFile(t, "laptimer.yaml", `
addr: ":9090"
data_dir: /tmp/races
race_settings:
  max_laps: 4
  min_lap_time: 2
`)
			_ = os.Setenv("LAPTIMER_CONFIG", path)
			_ = os.Setenv("LAPTIMER_RACE_SETTINGS__MAX_LAPS", "6")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DataDir, convey.ShouldEqual, "/tmp/races")
				convey.So(cfg.Race.MaxLaps, convey.ShouldEqual, 6)
				convey.So(cfg.Race.MinLap().Seconds(), convey.ShouldEqual, 2.0)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(t, "bad.yaml", `invalid: yaml: content: [`)
			_ = os.Setenv("LAPTIMER_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LAPTIMER_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("LAPTIMER_RACE_SETTINGS__MAX_LAPS", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "max_laps")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric env var is malformed", func() {
			_ = os.Setenv("LAPTIMER_QUEUE_SIZE", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then unmarshalling fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// clearConfigEnvVars removes every LAPTIMER_ variable these tests set.
func clearConfigEnvVars() {
	envVars := []string{
		"LAPTIMER_CONFIG",
		"LAPTIMER_ADDR",
		"LAPTIMER_STORE",
		"LAPTIMER_QUEUE_SIZE",
		"LAPTIMER_RACE_SETTINGS__MAX_LAPS",
		"LAPTIMER_RACE_SETTINGS__AUTO_START",
		"LAPTIMER_DETECTION_SETTINGS__MIN_CONTOUR_AREA",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
