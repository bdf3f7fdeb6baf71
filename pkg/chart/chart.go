// Package chart renders a forecast report as a PNG line plot or an
// interactive HTML page.
package chart

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/HatiCode/linecast/pkg/forecast"
)

func title(r forecast.Report) string {
	return fmt.Sprintf("Queue forecast %s (%s)", r.Day.Format("2006-01-02 Mon"), r.Model)
}

// clockTicks labels the X axis (minutes since midnight) as HH:MM.
type clockTicks struct {
	points []forecast.Point
}

func (c clockTicks) Ticks(min, max float64) []plot.Tick {
	ticks := make([]plot.Tick, 0, len(c.points))
	for i, p := range c.points {
		t := plot.Tick{Value: minuteOfDay(p)}
		if i%3 == 0 {
			t.Label = p.Clock()
		}
		ticks = append(ticks, t)
	}
	return ticks
}

func minuteOfDay(p forecast.Point) float64 {
	return float64(p.Time.Hour()*60 + p.Time.Minute())
}

// WritePNG saves the curve, its quantile band and the peak marker to path.
func WritePNG(r forecast.Report, path string) error {
	if len(r.Points) == 0 {
		return fmt.Errorf("chart: report has no points")
	}

	p := plot.New()
	p.Title.Text = title(r)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "people"
	p.X.Tick.Marker = clockTicks{points: r.Points}
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	mid := make(plotter.XYs, len(r.Points))
	low := make(plotter.XYs, len(r.Points))
	high := make(plotter.XYs, len(r.Points))
	for i, pt := range r.Points {
		x := minuteOfDay(pt)
		mid[i] = plotter.XY{X: x, Y: pt.Count}
		low[i] = plotter.XY{X: x, Y: pt.Low}
		high[i] = plotter.XY{X: x, Y: pt.High}
	}

	line, points, err := plotter.NewLinePoints(mid)
	if err != nil {
		return fmt.Errorf("chart: build line: %w", err)
	}
	line.Width = vg.Points(2)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	points.Color = line.Color

	lowLine, err := plotter.NewLine(low)
	if err != nil {
		return fmt.Errorf("chart: build band: %w", err)
	}
	highLine, err := plotter.NewLine(high)
	if err != nil {
		return fmt.Errorf("chart: build band: %w", err)
	}
	for _, l := range []*plotter.Line{lowLine, highLine} {
		l.Width = vg.Points(1)
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		l.Color = color.Gray{Y: 140}
	}

	peak, err := plotter.NewScatter(plotter.XYs{{X: minuteOfDay(r.Peak.Point), Y: r.Peak.Count}})
	if err != nil {
		return fmt.Errorf("chart: build peak: %w", err)
	}
	peak.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	peak.Radius = vg.Points(5)

	p.Add(lowLine, highLine, line, points, peak)
	p.Legend.Add("forecast", line)
	p.Legend.Add("10-90%", lowLine)
	p.Legend.Add("peak "+r.Peak.Clock(), peak)
	p.Legend.Top = true

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("chart: create dir: %w", err)
		}
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("chart: save %s: %w", path, err)
	}
	return nil
}

// WriteHTML renders an interactive line chart to w.
func WriteHTML(r forecast.Report, w io.Writer) error {
	if len(r.Points) == 0 {
		return fmt.Errorf("chart: report has no points")
	}

	labels := make([]string, len(r.Points))
	mid := make([]opts.LineData, len(r.Points))
	low := make([]opts.LineData, len(r.Points))
	high := make([]opts.LineData, len(r.Points))
	for i, p := range r.Points {
		labels[i] = p.Clock()
		mid[i] = opts.LineData{Value: round1(p.Count)}
		low[i] = opts.LineData{Value: round1(p.Low)}
		high[i] = opts.LineData{Value: round1(p.High)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Queue forecast", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title(r), Subtitle: r.Peak.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "people", Min: 0}),
	)
	line.SetXAxis(labels).
		AddSeries("forecast", mid, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("p10", low, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#999999"})).
		AddSeries("p90", high, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Color: "#999999"}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("chart: render html: %w", err)
	}
	return nil
}

// WriteHTMLFile renders the HTML chart to path.
func WriteHTMLFile(r forecast.Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("chart: create dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chart: create %s: %w", path, err)
	}
	if err := WriteHTML(r, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
