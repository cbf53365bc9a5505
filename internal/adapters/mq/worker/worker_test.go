package worker_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/okian/laptimer/internal/adapters/camera"
	queue "github.com/okian/laptimer/internal/adapters/mq/queue"
	worker "github.com/okian/laptimer/internal/adapters/mq/worker"
	"github.com/okian/laptimer/internal/domain/cooldown"
	"github.com/okian/laptimer/internal/domain/detection"
	model "github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/timeutil"
	logging "github.com/okian/laptimer/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// scriptedDetector triggers on a fixed set of frame sequence numbers.
type scriptedDetector struct {
	trigger map[uint64]bool
	fail    map[uint64]bool
}

func (d *scriptedDetector) Name() string { return "scripted" }

func (d *scriptedDetector) Detect(f model.Frame) (detection.Decision, error) {
	if d.fail[f.Seq] {
		return detection.Decision{}, errors.New("bad frame")
	}
	dec := detection.Decision{Detector: "scripted", FrameSeq: f.Seq, At: f.CapturedAt}
	if d.trigger[f.Seq] {
		dec.Triggered = true
		dec.ConditionsMet = 4
		dec.Measurement.MotionPixels = 1200
	}
	return dec, nil
}

func (d *scriptedDetector) Reset() {}

type recordingSink struct {
	mu      sync.Mutex
	results []model.RaceResult
	err     error
}

func (s *recordingSink) Record(_ context.Context, r model.RaceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func (s *recordingSink) all() []model.RaceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RaceResult(nil), s.results...)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func frameAt(seq uint64) model.Frame {
	return model.Frame{
		Camera:     model.CameraStartLine,
		Seq:        seq,
		Image:      image.NewGray(image.Rect(0, 0, 8, 8)),
		CapturedAt: t0.Add(time.Duration(seq) * 100 * time.Millisecond),
	}
}

func TestDetectWorker(t *testing.T) {
	convey.Convey("Given a detect worker with a 2.5s cooldown", t, func() {
		clock := timeutil.NewMockClock(t0)
		gate := cooldown.NewGate(cooldown.WithInterval(2500*time.Millisecond), cooldown.WithClock(clock))
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		det := &scriptedDetector{
			trigger: map[uint64]bool{2: true, 3: true, 10: true, 40: true},
			fail:    map[uint64]bool{5: true},
		}
		w := worker.NewDetectWorker(camera.NewSlot(model.CameraStartLine), det, gate, q)
		ctx := context.Background()

		convey.Convey("When frames are processed in order", func() {
			var accepted []uint64
			for seq := uint64(1); seq <= 45; seq++ {
				f := frameAt(seq)
				clock.Set(f.CapturedAt)
				if _, ok := w.Process(ctx, f); ok {
					accepted = append(accepted, seq)
				}
			}

			convey.Convey("Then repeated triggers inside the cooldown are suppressed", func() {
				convey.So(accepted, convey.ShouldResemble, []uint64{2, 40})
				convey.So(w.Accepted(), convey.ShouldEqual, uint64(2))
				convey.So(w.Processed(), convey.ShouldEqual, uint64(45))
				convey.So(gate.Suppressed(), convey.ShouldEqual, int64(2))
				convey.So(q.Len(ctx), convey.ShouldEqual, 2)
			})

			convey.Convey("Then crossings carry the frame time and measurements", func() {
				_ = q.Close()
				var got []model.Crossing
				for c := range q.Dequeue(ctx) {
					got = append(got, c)
				}
				convey.So(got, convey.ShouldHaveLength, 2)
				convey.So(got[0].At, convey.ShouldEqual, frameAt(2).CapturedAt)
				convey.So(got[0].MotionPixels, convey.ShouldEqual, 1200)
				convey.So(got[0].ConditionsMet, convey.ShouldEqual, 4)
				convey.So(got[0].ID, convey.ShouldNotBeEmpty)
				convey.So(got[1].At, convey.ShouldEqual, frameAt(40).CapturedAt)
			})

			convey.Convey("Then the latest decision is published", func() {
				dec, ok := w.Latest()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(dec.FrameSeq, convey.ShouldEqual, uint64(45))
			})
		})

		convey.Convey("When the detector fails", func() {
			_, ok := w.Process(ctx, frameAt(5))

			convey.Convey("Then no decision is recorded", func() {
				convey.So(ok, convey.ShouldBeFalse)
				_, has := w.Latest()
				convey.So(has, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the queue is closed", func() {
			_ = q.Close()
			_, ok := w.Process(ctx, frameAt(2))

			convey.Convey("Then the crossing is dropped", func() {
				convey.So(ok, convey.ShouldBeFalse)
				convey.So(w.Accepted(), convey.ShouldEqual, uint64(0))
			})
		})

		convey.Convey("When the detector is swapped", func() {
			w.Process(ctx, frameAt(1))
			other := &scriptedDetector{}
			w.SetDetector(other)

			convey.Convey("Then the old decision is cleared", func() {
				_, has := w.Latest()
				convey.So(has, convey.ShouldBeFalse)
				convey.So(w.Detector(), convey.ShouldEqual, other)
			})
		})
	})
}

func TestDetectWorkerRun(t *testing.T) {
	convey.Convey("Given a running detect worker reading a slot", t, func() {
		slot := camera.NewSlot(model.CameraStartLine)
		gate := cooldown.NewGate(cooldown.WithInterval(0))
		q := queue.NewInMemoryQueue()
		w := worker.NewDetectWorker(slot, &scriptedDetector{trigger: map[uint64]bool{2: true}}, gate, q, worker.WithName("detect-test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		for range 3 {
			slot.Put(image.NewGray(image.Rect(0, 0, 4, 4)), time.Now())
			time.Sleep(10 * time.Millisecond)
		}
		deadline := time.Now().Add(time.Second)
		for w.Processed() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		convey.Convey("Then frames flow through and shutdown is graceful", func() {
			convey.So(w.Processed(), convey.ShouldEqual, uint64(3))
			convey.So(w.Accepted(), convey.ShouldEqual, uint64(1))

			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestLapWorker(t *testing.T) {
	convey.Convey("Given a lap worker over a three-lap race", t, func() {
		clock := timeutil.NewMockClock(t0)
		r := race.New(race.WithMaxLaps(3), race.WithClock(clock))
		q := queue.NewInMemoryQueue()
		sink := &recordingSink{}
		snapshot := model.DetectionSnapshot{Detector: "vote", ConditionsRequired: 3}
		w := worker.NewLapWorker(q, r, sink, func() model.DetectionSnapshot { return snapshot })

		var mu sync.Mutex
		var kinds []race.OutcomeKind
		w.OnOutcome(func(_ model.Crossing, out race.Outcome) {
			mu.Lock()
			kinds = append(kinds, out.Kind)
			mu.Unlock()
		})

		ctx := context.Background()
		for _, at := range []time.Duration{0, 12 * time.Second, 22 * time.Second, 36 * time.Second, 40 * time.Second} {
			convey.So(q.Enqueue(ctx, model.Crossing{ID: at.String(), At: t0.Add(at)}), convey.ShouldBeTrue)
		}
		_ = q.Close()

		convey.Convey("When the worker drains the queue", func() {
			w.Run(ctx)

			convey.Convey("Then the race starts, counts laps and finishes", func() {
				mu.Lock()
				defer mu.Unlock()
				convey.So(kinds, convey.ShouldResemble, []race.OutcomeKind{
					race.Started, race.LapCompleted, race.LapCompleted, race.Finished, race.Ignored,
				})
			})

			convey.Convey("Then exactly one result reaches the sink", func() {
				res := sink.all()
				convey.So(res, convey.ShouldHaveLength, 1)
				convey.So(res[0].LapTimes, convey.ShouldResemble, []float64{12, 10, 14})
				convey.So(res[0].TotalTime, convey.ShouldEqual, 36.0)
				convey.So(res[0].BestLapNumber, convey.ShouldEqual, 2)
				convey.So(res[0].Completed, convey.ShouldBeTrue)
				convey.So(res[0].DetectionSettings, convey.ShouldResemble, snapshot)
			})

			convey.Convey("Then Shutdown after Run returns immediately", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a failing result sink", t, func() {
		r := race.New(race.WithMaxLaps(1))
		sink := &recordingSink{err: errors.New("disk full")}
		w := worker.NewLapWorker(queue.NewInMemoryQueue(), r, sink, nil)
		ctx := context.Background()

		convey.So(w.Process(ctx, model.Crossing{At: t0}), convey.ShouldBeNil)
		err := w.Process(ctx, model.Crossing{At: t0.Add(5 * time.Second)})

		convey.Convey("Then the error is returned to the caller", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(sink.all(), convey.ShouldHaveLength, 1)
		})
	})
}
