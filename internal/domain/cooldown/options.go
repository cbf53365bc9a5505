package cooldown

import (
	"time"

	"github.com/okian/laptimer/internal/timeutil"
)

// Option applies a configuration option to a Gate.
type Option func(*Gate)

// WithInterval sets the cooldown between accepted detections.
func WithInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.interval = d
		}
	}
}

// WithClock sets the time source. Tests pass a timeutil.MockClock.
func WithClock(c timeutil.Clock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}
