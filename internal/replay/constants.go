package replay

import "time"

// Replay defaults.
const (
	DefaultFPS       = 30
	DefaultWidth     = 320
	DefaultHeight    = 240
	DefaultTolerance = 150 * time.Millisecond
	DefaultTimeout   = 10 * time.Second
)

// Run modes.
const (
	ModeSynthetic = "synthetic"
	ModeImages    = "images"
	ModeRemote    = "remote"
)

// HTTP status codes.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)
