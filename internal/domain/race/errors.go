package race

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a race is in progress.
	ErrAlreadyRunning = errors.New("race already running")
	// ErrNotRunning is returned by Stop when no race is in progress.
	ErrNotRunning = errors.New("race not running")
	// ErrNoLaps is returned by Result before any lap was completed.
	ErrNoLaps = errors.New("no laps recorded")
)
