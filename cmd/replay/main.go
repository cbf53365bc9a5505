package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/laptimer/internal/replay"
)

const (
	defaultLaps        = "12s,10.5s,11.2s"
	defaultSize        = "320x240"
	defaultSeed        = 1
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	defaults := replay.DefaultConfig()
	var (
		lapList   = flag.String("laps", defaultLaps, "Comma separated lap durations")
		fps       = flag.Int("fps", defaults.FPS, "Frames per second of the synthetic scene")
		size      = flag.String("size", defaultSize, "Frame size WxH")
		noise     = flag.Int("noise", 0, "Per-pixel noise amplitude")
		seed      = flag.Int64("seed", defaultSeed, "Noise seed")
		detector  = flag.String("detector", defaults.Detector, "Detector kind")
		cooldown  = flag.Duration("cooldown", defaults.Cooldown, "Cooldown between accepted crossings")
		images    = flag.String("images", "", "Replay frames from a directory")
		tolerance = flag.Duration("tolerance", defaults.Tolerance, "Allowed error per lap")
		baseURL   = flag.String("url", "", "Base URL of a running rig")
		speed     = flag.Float64("speed", defaults.Speed, "Time compression for -url runs")
		timeout   = flag.Duration("timeout", defaults.Timeout, "HTTP request timeout")
		output    = flag.String("output", "", "Report file")
		logFile   = flag.String("log", "", "Log file for replay output")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	if err := replay.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	laps, err := replay.ParseLaps(*lapList)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if *images != "" && !flagSet("laps") {
		laps = nil
	}
	width, height, err := replay.ParseSize(*size)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &replay.Config{
		Laps:       laps,
		FPS:        *fps,
		Width:      width,
		Height:     height,
		Noise:      *noise,
		Seed:       *seed,
		Detector:   *detector,
		ImagesDir:  *images,
		Tolerance:  *tolerance,
		Cooldown:   *cooldown,
		BaseURL:    *baseURL,
		Speed:      *speed,
		Timeout:    *timeout,
		OutputFile: *output,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	rep, err := replay.Run(ctx, config)
	if err != nil {
		_, _ = os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
	if !rep.Verification.Pass {
		cancel()
		os.Exit(1)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
