// Package report renders lap-time charts: a PNG per finished race and an
// HTML page comparing recent races.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoLaps is returned when a chart would be empty.
var ErrNoLaps = errors.New("result has no laps")

// Chart size.
const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 4 * vg.Inch
)

var (
	lapColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	bestColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	avgColor  = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
)

func lapPlot(r model.RaceResult) (*plot.Plot, error) {
	if len(r.LapTimes) == 0 {
		return nil, ErrNoLaps
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Race %s  total %s  best %s",
		r.Timestamp.Format("2006-01-02 15:04"), laps.FormatSeconds(r.TotalTime), laps.FormatSeconds(r.BestLap))
	p.X.Label.Text = "Lap"
	p.Y.Label.Text = "Time (s)"
	p.Y.Min = 0
	p.X.Min = 0.5
	p.X.Max = float64(len(r.LapTimes)) + 0.5
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(r.LapTimes))
	for i, s := range r.LapTimes {
		pts[i] = plotter.XY{X: float64(i + 1), Y: s}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = lapColor
	line.Width = vg.Points(1.5)
	points.Color = lapColor
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points)
	p.Legend.Add("lap", line, points)

	if r.BestLapNumber > 0 && r.BestLapNumber <= len(r.LapTimes) {
		best, err := plotter.NewScatter(plotter.XYs{pts[r.BestLapNumber-1]})
		if err != nil {
			return nil, err
		}
		best.Color = bestColor
		best.Shape = draw.CircleGlyph{}
		best.Radius = vg.Points(5)
		p.Add(best)
		p.Legend.Add("best", best)
	}

	if r.AverageLap > 0 {
		avg := plotter.NewFunction(func(float64) float64 { return r.AverageLap })
		avg.Color = avgColor
		avg.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(avg)
		p.Legend.Add("average", avg)
	}
	p.Legend.Top = true
	return p, nil
}

// WriteLapChartPNG renders the laps of r as a PNG line chart with the best
// lap marked.
func WriteLapChartPNG(w io.Writer, r model.RaceResult) error {
	p, err := lapPlot(r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveLapChart writes the chart of r to path. The format follows the extension.
func SaveLapChart(path string, r model.RaceResult) error {
	p, err := lapPlot(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(chartWidth, chartHeight, path)
}

// ChartPath returns the chart file name stored next to a result file.
func ChartPath(resultPath string) string {
	return strings.TrimSuffix(resultPath, filepath.Ext(resultPath)) + "_laps.png"
}
