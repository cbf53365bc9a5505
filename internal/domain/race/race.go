// Package race implements the lap-counting state machine: a race starts,
// accumulates laps on start-line crossings and finishes after the configured
// number of laps.
package race

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/timeutil"
)

// Defaults.
const (
	DefaultMaxLaps      = 3
	DefaultHideTimerLap = 3
)

// OutcomeKind classifies what a crossing did to the race.
type OutcomeKind int

const (
	Ignored OutcomeKind = iota
	Started
	LapCompleted
	Finished
)

func (k OutcomeKind) String() string {
	switch k {
	case Ignored:
		return "ignored"
	case Started:
		return "started"
	case LapCompleted:
		return "lap"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the effect of one crossing.
type Outcome struct {
	Kind    OutcomeKind
	Lap     model.Lap // set for LapCompleted and Finished
	BestLap bool      // the lap is the fastest so far
	Reason  string    // why an Ignored crossing was dropped
}

// Race is safe for concurrent use.
type Race struct {
	mu           sync.Mutex
	clock        timeutil.Clock
	maxLaps      int
	autoStart    bool
	hideTimerLap int
	minLapTime   time.Duration

	state      model.RaceState
	startedAt  time.Time
	lapStarted time.Time
	finishedAt time.Time
	laps       []model.Lap
	best       time.Duration
	bestNumber int
}

// New creates an idle race.
func New(opts ...Option) *Race {
	r := &Race{
		clock:        timeutil.RealClock{},
		maxLaps:      DefaultMaxLaps,
		autoStart:    true,
		hideTimerLap: DefaultHideTimerLap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxLaps returns the configured race length.
func (r *Race) MaxLaps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxLaps
}

// Start begins a race now, discarding laps of a finished race.
func (r *Race) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == model.RaceRunning {
		return ErrAlreadyRunning
	}
	r.begin(r.clock.Now())
	return nil
}

func (r *Race) begin(at time.Time) {
	r.state = model.RaceRunning
	r.startedAt = at
	r.lapStarted = at
	r.finishedAt = time.Time{}
	r.laps = nil
	r.best = 0
	r.bestNumber = 0
}

// Stop finishes a running race early. The laps driven so far are kept.
func (r *Race) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != model.RaceRunning {
		return ErrNotRunning
	}
	r.state = model.RaceFinished
	r.finishedAt = r.clock.Now()
	return nil
}

// Reset returns the race to idle and clears all laps.
func (r *Race) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = model.RaceIdle
	r.startedAt = time.Time{}
	r.lapStarted = time.Time{}
	r.finishedAt = time.Time{}
	r.laps = nil
	r.best = 0
	r.bestNumber = 0
}

// Crossing applies a start-line crossing observed at at.
func (r *Race) Crossing(at time.Time) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case model.RaceIdle:
		if !r.autoStart {
			return Outcome{Kind: Ignored, Reason: "race not started"}
		}
		r.begin(at)
		return Outcome{Kind: Started}
	case model.RaceFinished:
		return Outcome{Kind: Ignored, Reason: "race finished"}
	}

	d := at.Sub(r.lapStarted)
	if d <= 0 || d < r.minLapTime {
		return Outcome{Kind: Ignored, Reason: fmt.Sprintf("lap too short (%s)", d)}
	}
	lap := model.Lap{Number: len(r.laps) + 1, Duration: d, EndedAt: at}
	r.laps = append(r.laps, lap)
	r.lapStarted = at

	out := Outcome{Kind: LapCompleted, Lap: lap}
	if r.bestNumber == 0 || d < r.best {
		r.best = d
		r.bestNumber = lap.Number
		out.BestLap = true
	}
	if len(r.laps) >= r.maxLaps {
		r.state = model.RaceFinished
		r.finishedAt = at
		out.Kind = Finished
	}
	return out
}

// Status returns a snapshot of the race as of now.
func (r *Race) Status(now time.Time) model.RaceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := model.RaceStatus{
		State:         r.state,
		MaxLaps:       r.maxLaps,
		Laps:          append([]model.Lap(nil), r.laps...),
		StartedAt:     r.startedAt,
		BestLap:       r.best,
		BestLapNumber: r.bestNumber,
	}
	if n := len(r.laps); n > 0 {
		st.LastLap = r.laps[n-1].Duration
	}
	switch r.state {
	case model.RaceRunning:
		st.CurrentLap = len(r.laps) + 1
		st.Elapsed = nonNegative(now.Sub(r.startedAt))
		st.CurrentLapElapsed = nonNegative(now.Sub(r.lapStarted))
		st.TimerVisible = !r.timerHidden(st.CurrentLap, st.CurrentLapElapsed)
	case model.RaceFinished:
		st.CurrentLap = len(r.laps)
		st.Elapsed = r.finishedAt.Sub(r.startedAt)
	}
	return st
}

// timerHidden reports whether the running timer is hidden. It hides halfway
// through the hide lap, judged by the previous lap time, and stays hidden after.
func (r *Race) timerHidden(current int, lapElapsed time.Duration) bool {
	if r.hideTimerLap <= 0 || current < r.hideTimerLap || len(r.laps) == 0 {
		return false
	}
	if current > r.hideTimerLap {
		return true
	}
	return lapElapsed >= r.laps[len(r.laps)-1].Duration/2
}

// Result summarizes the recorded laps. It fails with ErrNoLaps before the first lap.
func (r *Race) Result(settings model.DetectionSnapshot) (model.RaceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.laps) == 0 {
		return model.RaceResult{}, ErrNoLaps
	}
	durations := make([]time.Duration, len(r.laps))
	times := make([]float64, len(r.laps))
	for i, l := range r.laps {
		durations[i] = l.Duration
		times[i] = laps.Round3(l.Seconds())
	}
	sum := laps.Summarize(durations)
	ts := r.finishedAt
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	return model.RaceResult{
		ID:                uuid.NewString(),
		Timestamp:         ts,
		LapCount:          sum.Count,
		LapTimes:          times,
		TotalTime:         laps.Round3(sum.Total.Seconds()),
		AverageLap:        laps.Round3(sum.Average.Seconds()),
		BestLap:           laps.Round3(sum.Best.Seconds()),
		WorstLap:          laps.Round3(sum.Worst.Seconds()),
		BestLapNumber:     sum.BestLap,
		MaxLaps:           r.maxLaps,
		Completed:         len(r.laps) >= r.maxLaps,
		DetectionSettings: settings,
	}, nil
}

func nonNegative(d time.Duration) time.Duration {
	return max(d, 0)
}
