package laps_test

import (
	"testing"
	"time"

	"github.com/okian/laptimer/internal/domain/laps"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSummarize(t *testing.T) {
	Convey("Given recorded laps", t, func() {
		input := []time.Duration{
			12 * time.Second,
			10 * time.Second,
			14 * time.Second,
		}

		Convey("When summarizing", func() {
			s := laps.Summarize(input)

			Convey("Then totals and extremes are computed", func() {
				So(s.Count, ShouldEqual, 3)
				So(s.Total, ShouldEqual, 36*time.Second)
				So(s.Average, ShouldEqual, 12*time.Second)
				So(s.Best, ShouldEqual, 10*time.Second)
				So(s.BestLap, ShouldEqual, 2)
				So(s.Worst, ShouldEqual, 14*time.Second)
				So(s.WorstLap, ShouldEqual, 3)
			})

			Convey("And the sample standard deviation is reported", func() {
				So(s.StdDev, ShouldEqual, 2*time.Second)
			})
		})

		Convey("When there is a single lap", func() {
			s := laps.Summarize(input[:1])
			So(s.Count, ShouldEqual, 1)
			So(s.StdDev, ShouldEqual, time.Duration(0))
			So(s.Best, ShouldEqual, s.Worst)
			So(s.BestLap, ShouldEqual, 1)
		})

		Convey("When there are no laps", func() {
			So(laps.Summarize(nil), ShouldResemble, laps.Summary{})
		})
	})
}

func TestFormatDuration(t *testing.T) {
	Convey("Given lap durations", t, func() {
		So(laps.FormatDuration(0), ShouldEqual, "00:00.000")
		So(laps.FormatDuration(12345*time.Millisecond), ShouldEqual, "00:12.345")
		So(laps.FormatDuration(83*time.Second+7*time.Millisecond), ShouldEqual, "01:23.007")
		So(laps.FormatDuration(-time.Second), ShouldEqual, "00:00.000")
		So(laps.FormatSeconds(61.5), ShouldEqual, "01:01.500")
	})
}

func TestRound3(t *testing.T) {
	Convey("Seconds round to milliseconds", t, func() {
		So(laps.Round3(1.23456), ShouldEqual, 1.235)
		So(laps.Round3(2), ShouldEqual, 2.0)
	})
}
