package timeutil

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMockClock(t *testing.T) {
	Convey("Given a mock clock", t, func() {
		start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		c := NewMockClock(start)

		Convey("Now and Since follow Advance", func() {
			c.Advance(1500 * time.Millisecond)
			So(c.Now(), ShouldEqual, start.Add(1500*time.Millisecond))
			So(c.Since(start), ShouldEqual, 1500*time.Millisecond)
		})

		Convey("After fires only once the deadline passes", func() {
			ch := c.After(time.Second)
			c.Advance(500 * time.Millisecond)
			select {
			case <-ch:
				t.Fatal("fired early")
			default:
			}
			c.Advance(500 * time.Millisecond)
			So(<-ch, ShouldEqual, start.Add(time.Second))
		})

		Convey("After with a non-positive duration fires immediately", func() {
			So(<-c.After(0), ShouldEqual, start)
		})

		Convey("Tickers fire per period and stop on demand", func() {
			tk := c.NewTicker(100 * time.Millisecond)
			c.Advance(100 * time.Millisecond)
			So(<-tk.C(), ShouldEqual, start.Add(100*time.Millisecond))

			tk.Stop()
			c.Advance(time.Second)
			select {
			case <-tk.C():
				t.Fatal("stopped ticker fired")
			default:
			}
		})

		Convey("Set moves the clock without firing", func() {
			ch := c.After(time.Millisecond)
			c.Set(start.Add(time.Hour))
			So(c.Now(), ShouldEqual, start.Add(time.Hour))
			select {
			case <-ch:
				t.Fatal("Set fired a waiter")
			default:
			}
		})
	})
}

func TestRealClock(t *testing.T) {
	Convey("Given the real clock", t, func() {
		var c Clock = RealClock{}
		before := time.Now()
		So(c.Now().Before(before), ShouldBeFalse)
		So(c.Since(before), ShouldBeGreaterThanOrEqualTo, 0)

		tk := c.NewTicker(time.Millisecond)
		defer tk.Stop()
		<-tk.C()
		<-c.After(time.Millisecond)
	})
}
