// Package replay feeds a known lap schedule through the timing pipeline and
// checks the laps it reports, either in process against synthetic or
// recorded frames or against a running rig over HTTP.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/laptimer/pkg/logger"
)

// SetupLogging configures logging to the console and, when logFile is set,
// to that file as well.
func SetupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	if err := logger.Init(logger.WithOutput(out)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return err
		}
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Lap Timer Replay Tool
=====================

Replays a known lap schedule and checks the lap times the timer reports.

Usage:
  go run ./cmd/replay [options]

Options:
  -laps string
        Comma separated lap durations (default "12s,10.5s,11.2s")
  -fps int
        Frames per second of the synthetic scene (default 30)
  -size string
        Frame size WxH (default "320x240")
  -noise int
        Per-pixel noise amplitude (default 0)
  -seed int
        Noise seed (default 1)
  -detector string
        Detector: vote, framediff, multiframe, flow or mog2 (default "vote")
  -cooldown duration
        Cooldown between accepted crossings (default 2.5s)
  -images string
        Replay PNG/JPEG frames from a directory instead of the synthetic scene
  -tolerance duration
        Allowed error per lap (default 150ms)
  -url string
        Drive a running rig over HTTP instead of the local pipeline
  -speed float
        Time compression for -url runs (default 1)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Write a JSON report, plus a lap chart next to it
  -log string
        Also write log output to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Time the default synthetic race with the vote detector
  go run ./cmd/replay

  # Compare detectors on a noisy scene
  go run ./cmd/replay -detector framediff -noise 12 -output out/framediff.json

  # Check recorded frames against known lap times
  go run ./cmd/replay -images captures/run1 -fps 30 -laps 9.8s,9.6s,10.1s

  # Exercise a running rig ten times faster than real time
  go run ./cmd/replay -url http://localhost:9080 -laps 30s,30s,30s -speed 10
`)
}
