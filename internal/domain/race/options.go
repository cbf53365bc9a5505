package race

import (
	"time"

	"github.com/okian/laptimer/internal/timeutil"
)

// Option applies a configuration option to a Race.
type Option func(*Race)

// WithMaxLaps sets the number of laps after which the race finishes.
func WithMaxLaps(n int) Option {
	return func(r *Race) {
		if n > 0 {
			r.maxLaps = n
		}
	}
}

// WithAutoStart makes the first crossing of an idle race start it.
func WithAutoStart(on bool) Option {
	return func(r *Race) {
		r.autoStart = on
	}
}

// WithHideTimerLap sets the lap during which the running timer hides. Zero disables hiding.
func WithHideTimerLap(lap int) Option {
	return func(r *Race) {
		if lap >= 0 {
			r.hideTimerLap = lap
		}
	}
}

// WithMinLapTime ignores crossings that would close a lap shorter than d.
func WithMinLapTime(d time.Duration) Option {
	return func(r *Race) {
		if d >= 0 {
			r.minLapTime = d
		}
	}
}

// WithClock sets the time source used by Start and Stop.
func WithClock(c timeutil.Clock) Option {
	return func(r *Race) {
		if c != nil {
			r.clock = c
		}
	}
}
