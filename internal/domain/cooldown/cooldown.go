// Package cooldown suppresses repeated detections of the same crossing.
package cooldown

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/laptimer/internal/timeutil"
)

// DefaultInterval is the minimum spacing between accepted detections.
const DefaultInterval = 2500 * time.Millisecond

// Gate admits at most one detection per interval.
type Gate struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	interval   time.Duration
	last       time.Time    // time of the last accepted detection
	armed      bool         // false until the first acceptance or after Reset
	suppressed atomic.Int64 // attempts rejected while cooling down
	accepted   atomic.Int64
}

// NewGate creates a gate with configuration options.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		clock:    timeutil.RealClock{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquire reports whether a detection is accepted now. Accepting restarts the cooldown.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if g.armed && now.Sub(g.last) < g.interval {
		g.suppressed.Add(1)
		return false
	}
	g.last = now
	g.armed = true
	g.accepted.Add(1)
	return true
}

// Remaining returns the time left before the next detection can be accepted.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return 0
	}
	if left := g.interval - g.clock.Now().Sub(g.last); left > 0 {
		return left
	}
	return 0
}

// SetInterval changes the cooldown. Negative values are treated as zero.
func (g *Gate) SetInterval(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = max(d, 0)
}

// Interval returns the current cooldown.
func (g *Gate) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// Reset forgets the last acceptance so the next attempt passes.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = false
	g.last = time.Time{}
}

// Suppressed returns the number of attempts rejected by the cooldown.
func (g *Gate) Suppressed() int64 { return g.suppressed.Load() }

// Accepted returns the number of attempts let through.
func (g *Gate) Accepted() int64 { return g.accepted.Load() }
