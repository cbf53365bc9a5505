package worker

import (
	"context"
	"errors"
	"time"

	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

// Timer is the race state machine driven by crossings.
type Timer interface {
	Crossing(at time.Time) race.Outcome
	Result(settings model.DetectionSnapshot) (model.RaceResult, error)
}

// ResultSink receives the result of every finished race.
type ResultSink interface {
	Record(ctx context.Context, r model.RaceResult) error
}

// LapWorker applies crossings to the race and publishes finished results.
type LapWorker struct {
	base

	queue    Queue
	timer    Timer
	sink     ResultSink
	settings func() model.DetectionSnapshot
	listener func(model.Crossing, race.Outcome)
}

// NewLapWorker creates a lap worker. settings is sampled when a race
// finishes and stored with its result.
func NewLapWorker(q Queue, timer Timer, sink ResultSink, settings func() model.DetectionSnapshot, opts ...Option) *LapWorker {
	if settings == nil {
		settings = func() model.DetectionSnapshot { return model.DetectionSnapshot{} }
	}
	w := &LapWorker{
		queue:    q,
		timer:    timer,
		sink:     sink,
		settings: settings,
	}
	w.setup("laps", opts)
	return w
}

// OnOutcome registers fn to observe every processed crossing. Call before Run.
func (w *LapWorker) OnOutcome(fn func(model.Crossing, race.Outcome)) {
	w.listener = fn
}

// Run consumes crossings until the queue closes, ctx ends or Shutdown is called.
func (w *LapWorker) Run(ctx context.Context) {
	defer close(w.done)
	ctx, cancel := w.runContext(ctx)
	defer cancel()

	crossings := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-crossings:
			if !ok {
				return
			}
			if err := w.Process(ctx, c); err != nil {
				w.logger.Error(ctx, "error processing crossing", logger.Error(err))
			}
		}
	}
}

// Process applies one crossing to the race.
func (w *LapWorker) Process(ctx context.Context, c model.Crossing) error {
	out := w.timer.Crossing(c.At)
	if w.listener != nil {
		defer w.listener(c, out)
	}

	switch out.Kind {
	case race.Ignored:
		w.logger.Debug(ctx, "crossing ignored",
			logger.String("crossing_id", c.ID),
			logger.String("reason", out.Reason),
		)
	case race.Started:
		metrics.UpdateRaceState(int(model.RaceRunning))
		w.logger.Info(ctx, "race started", logger.Time("at", c.At), logger.Bool("manual", c.Manual))
	case race.LapCompleted:
		w.recordLap(ctx, out)
	case race.Finished:
		w.recordLap(ctx, out)
		metrics.UpdateRaceState(int(model.RaceFinished))
		metrics.RecordRaceFinished()
		return w.finish(ctx)
	}
	return nil
}

func (w *LapWorker) recordLap(ctx context.Context, out race.Outcome) {
	metrics.RecordLap(out.Lap.Seconds())
	if out.BestLap {
		metrics.UpdateBestLap(out.Lap.Seconds())
	}
	w.logger.Info(ctx, "lap completed",
		logger.Int("lap", out.Lap.Number),
		logger.String("time", laps.FormatDuration(out.Lap.Duration)),
		logger.Bool("best", out.BestLap),
	)
}

// finish publishes the result of a race that just ended.
func (w *LapWorker) finish(ctx context.Context) error {
	res, err := w.timer.Result(w.settings())
	if errors.Is(err, race.ErrNoLaps) {
		return nil
	}
	if err != nil {
		return err
	}
	w.logger.Info(ctx, "race finished",
		logger.String("race_id", res.ID),
		logger.Int("laps", res.LapCount),
		logger.String("total", laps.FormatSeconds(res.TotalTime)),
		logger.String("best", laps.FormatSeconds(res.BestLap)),
	)
	if w.sink == nil {
		return nil
	}
	if err := w.sink.Record(ctx, res); err != nil {
		metrics.RecordErrorByComponent("laps", "result_sink")
		return err
	}
	return nil
}
