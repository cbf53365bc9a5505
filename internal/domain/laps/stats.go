// Package laps computes lap statistics and formats lap times for display.
package laps

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a race's laps.
type Summary struct {
	Count    int
	Total    time.Duration
	Average  time.Duration
	Best     time.Duration
	Worst    time.Duration
	StdDev   time.Duration
	BestLap  int // 1-based lap number of Best
	WorstLap int
}

// Summarize computes lap statistics. An empty input yields the zero Summary.
func Summarize(laps []time.Duration) Summary {
	if len(laps) == 0 {
		return Summary{}
	}

	secs := Seconds(laps)
	mean, std := stat.MeanStdDev(secs, nil)
	if len(secs) < 2 || math.IsNaN(std) {
		std = 0
	}
	best := floats.MinIdx(secs)
	worst := floats.MaxIdx(secs)

	return Summary{
		Count:    len(laps),
		Total:    fromSeconds(floats.Sum(secs)),
		Average:  fromSeconds(mean),
		Best:     laps[best],
		Worst:    laps[worst],
		StdDev:   fromSeconds(std),
		BestLap:  best + 1,
		WorstLap: worst + 1,
	}
}

// Seconds converts durations to float seconds.
func Seconds(laps []time.Duration) []float64 {
	out := make([]float64, len(laps))
	for i, l := range laps {
		out[i] = l.Seconds()
	}
	return out
}

// Round3 rounds seconds to millisecond precision.
func Round3(s float64) float64 {
	return math.Round(s*1000) / 1000
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// FormatDuration renders d as MM:SS.mmm. Negative durations render as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Millisecond)
	minutes := int(d / time.Minute)
	rest := d - time.Duration(minutes)*time.Minute
	return fmt.Sprintf("%02d:%06.3f", minutes, rest.Seconds())
}

// FormatSeconds renders s seconds as MM:SS.mmm.
func FormatSeconds(s float64) string {
	return FormatDuration(fromSeconds(s))
}
