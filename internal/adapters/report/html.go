package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

func raceLabel(r model.RaceResult) string {
	return r.Timestamp.Format("01-02 15:04:05")
}

// RenderLapChartHTML writes a page with one line per race (lap time by lap
// number) and a bar chart of best and average laps. results are drawn in
// chronological order.
func RenderLapChartHTML(w io.Writer, results []model.RaceResult) error {
	ordered := slices.Clone(results)
	slices.SortFunc(ordered, func(a, b model.RaceResult) int { return a.Timestamp.Compare(b.Timestamp) })

	maxLaps := 0
	for _, r := range ordered {
		maxLaps = max(maxLaps, len(r.LapTimes))
	}
	lapAxis := make([]string, maxLaps)
	for i := range lapAxis {
		lapAxis[i] = fmt.Sprintf("Lap %d", i+1)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lap times", Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Lap times", Subtitle: fmt.Sprintf("races=%d", len(ordered))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(lapAxis)
	for _, r := range ordered {
		data := make([]opts.LineData, len(r.LapTimes))
		for i, s := range r.LapTimes {
			data[i] = opts.LineData{Value: s, Name: laps.FormatSeconds(s)}
		}
		line.AddSeries(raceLabel(r), data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}

	labels := make([]string, len(ordered))
	best := make([]opts.BarData, len(ordered))
	avg := make([]opts.BarData, len(ordered))
	for i, r := range ordered {
		labels[i] = raceLabel(r)
		best[i] = opts.BarData{Value: r.BestLap}
		avg[i] = opts.BarData{Value: r.AverageLap}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Best and average lap"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(labels).
		AddSeries("best", best, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("average", avg)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.SetPageTitle("Lap charts")
	page.AddCharts(line, bar)
	return page.Render(w)
}
