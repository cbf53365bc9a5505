package race_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/race"
	"github.com/okian/laptimer/internal/timeutil"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestRaceAutoStart(t *testing.T) {
	Convey("Given an idle race with auto start", t, func() {
		clock := timeutil.NewMockClock(t0)
		r := race.New(race.WithClock(clock), race.WithMaxLaps(3))

		So(r.Status(t0).State, ShouldEqual, model.RaceIdle)
		So(r.Status(t0).TimerVisible, ShouldBeFalse)

		Convey("When the car crosses the first time", func() {
			out := r.Crossing(t0)

			Convey("Then the race starts on lap one", func() {
				So(out.Kind, ShouldEqual, race.Started)
				st := r.Status(t0.Add(time.Second))
				So(st.State, ShouldEqual, model.RaceRunning)
				So(st.CurrentLap, ShouldEqual, 1)
				So(st.Elapsed, ShouldEqual, time.Second)
				So(st.TimerVisible, ShouldBeTrue)
			})

			Convey("And laps are timed from the previous crossing", func() {
				out = r.Crossing(t0.Add(12 * time.Second))
				So(out.Kind, ShouldEqual, race.LapCompleted)
				So(out.Lap.Number, ShouldEqual, 1)
				So(out.Lap.Duration, ShouldEqual, 12*time.Second)
				So(out.BestLap, ShouldBeTrue)

				out = r.Crossing(t0.Add(22 * time.Second))
				So(out.Lap.Duration, ShouldEqual, 10*time.Second)
				So(out.BestLap, ShouldBeTrue)

				Convey("And the race finishes at max laps", func() {
					out = r.Crossing(t0.Add(36 * time.Second))
					So(out.Kind, ShouldEqual, race.Finished)
					So(out.Lap.Duration, ShouldEqual, 14*time.Second)
					So(out.BestLap, ShouldBeFalse)

					st := r.Status(t0.Add(time.Hour))
					So(st.State, ShouldEqual, model.RaceFinished)
					So(st.Elapsed, ShouldEqual, 36*time.Second)
					So(st.BestLap, ShouldEqual, 10*time.Second)
					So(st.BestLapNumber, ShouldEqual, 2)
					So(st.TimerVisible, ShouldBeFalse)

					Convey("And later crossings are ignored", func() {
						So(r.Crossing(t0.Add(50*time.Second)).Kind, ShouldEqual, race.Ignored)
						So(r.Status(t0).Laps, ShouldHaveLength, 3)
					})

					Convey("And the result summarizes the laps", func() {
						res, err := r.Result(model.DetectionSnapshot{Detector: "vote"})
						So(err, ShouldBeNil)
						So(res.ID, ShouldNotBeEmpty)
						So(res.Timestamp, ShouldEqual, t0.Add(36*time.Second))
						So(res.LapTimes, ShouldResemble, []float64{12, 10, 14})
						So(res.TotalTime, ShouldEqual, 36.0)
						So(res.AverageLap, ShouldEqual, 12.0)
						So(res.BestLap, ShouldEqual, 10.0)
						So(res.WorstLap, ShouldEqual, 14.0)
						So(res.BestLapNumber, ShouldEqual, 2)
						So(res.Completed, ShouldBeTrue)
						So(res.DetectionSettings.Detector, ShouldEqual, "vote")
					})
				})
			})
		})
	})
}

func TestRaceControls(t *testing.T) {
	Convey("Given a race without auto start", t, func() {
		clock := timeutil.NewMockClock(t0)
		r := race.New(race.WithClock(clock), race.WithAutoStart(false), race.WithMinLapTime(2*time.Second))

		Convey("Then crossings before start are ignored", func() {
			So(r.Crossing(t0).Kind, ShouldEqual, race.Ignored)
			So(r.Status(t0).State, ShouldEqual, model.RaceIdle)
		})

		Convey("When started manually", func() {
			So(r.Start(), ShouldBeNil)
			So(errors.Is(r.Start(), race.ErrAlreadyRunning), ShouldBeTrue)

			Convey("Then laps shorter than the minimum are ignored", func() {
				out := r.Crossing(t0.Add(time.Second))
				So(out.Kind, ShouldEqual, race.Ignored)
				So(out.Reason, ShouldNotBeEmpty)
				So(r.Crossing(t0.Add(5*time.Second)).Kind, ShouldEqual, race.LapCompleted)
			})

			Convey("Then stopping finishes the race with the laps so far", func() {
				r.Crossing(t0.Add(5 * time.Second))
				clock.Advance(7 * time.Second)
				So(r.Stop(), ShouldBeNil)

				st := r.Status(clock.Now())
				So(st.State, ShouldEqual, model.RaceFinished)
				So(st.Elapsed, ShouldEqual, 7*time.Second)

				res, err := r.Result(model.DetectionSnapshot{})
				So(err, ShouldBeNil)
				So(res.LapCount, ShouldEqual, 1)
				So(res.Completed, ShouldBeFalse)

				So(errors.Is(r.Stop(), race.ErrNotRunning), ShouldBeTrue)
			})

			Convey("Then stopping without laps yields no result", func() {
				So(r.Stop(), ShouldBeNil)
				_, err := r.Result(model.DetectionSnapshot{})
				So(errors.Is(err, race.ErrNoLaps), ShouldBeTrue)
			})

			Convey("Then reset returns to idle", func() {
				r.Crossing(t0.Add(5 * time.Second))
				r.Reset()
				st := r.Status(t0)
				So(st.State, ShouldEqual, model.RaceIdle)
				So(st.Laps, ShouldBeEmpty)
				So(st.BestLap, ShouldEqual, time.Duration(0))
			})
		})

		Convey("Stopping an idle race fails", func() {
			So(errors.Is(r.Stop(), race.ErrNotRunning), ShouldBeTrue)
		})
	})
}

func TestTimerHiding(t *testing.T) {
	Convey("Given a five lap race hiding the timer on lap three", t, func() {
		r := race.New(race.WithClock(timeutil.NewMockClock(t0)), race.WithMaxLaps(5), race.WithHideTimerLap(3))
		r.Crossing(t0)
		r.Crossing(t0.Add(10 * time.Second))
		r.Crossing(t0.Add(20 * time.Second))

		Convey("Then the timer shows early in lap three", func() {
			st := r.Status(t0.Add(24 * time.Second))
			So(st.CurrentLap, ShouldEqual, 3)
			So(st.CurrentLapElapsed, ShouldEqual, 4*time.Second)
			So(st.TimerVisible, ShouldBeTrue)
		})

		Convey("Then it hides halfway through lap three", func() {
			So(r.Status(t0.Add(25*time.Second)).TimerVisible, ShouldBeFalse)
		})

		Convey("Then it stays hidden on later laps", func() {
			r.Crossing(t0.Add(30 * time.Second))
			So(r.Status(t0.Add(31*time.Second)).TimerVisible, ShouldBeFalse)
		})
	})

	Convey("Given hiding disabled", t, func() {
		r := race.New(race.WithHideTimerLap(0))
		r.Crossing(t0)
		r.Crossing(t0.Add(10 * time.Second))
		r.Crossing(t0.Add(20 * time.Second))
		So(r.Status(t0.Add(29*time.Second)).TimerVisible, ShouldBeTrue)
	})
}

func TestOutcomeKindString(t *testing.T) {
	Convey("Outcome kinds have names", t, func() {
		So(race.Started.String(), ShouldEqual, "started")
		So(race.LapCompleted.String(), ShouldEqual, "lap")
		So(race.Finished.String(), ShouldEqual, "finished")
		So(race.Ignored.String(), ShouldEqual, "ignored")
	})
}
