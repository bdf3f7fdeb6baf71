// Package forecast defines tomorrow's prediction grid, the peak rule and
// the console report printed by the forecaster.
package forecast

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// ErrInsufficientData is returned when the history is too small to fit a
// model.
var ErrInsufficientData = errors.New("insufficient data")

// Point is one predicted count at a wall-clock time of the target day.
type Point struct {
	Time  time.Time
	Count float64

	// Low and High bound the prediction when the model reports quantiles;
	// both equal Count otherwise.
	Low  float64
	High float64
}

// Clock returns the point's time as HH:MM.
func (p Point) Clock() string {
	return p.Time.Format("15:04")
}

func (p Point) String() string {
	return fmt.Sprintf("%s -> 約 %.1f 人", p.Clock(), p.Count)
}

// Peak is the grid point with the greatest predicted count.
type Peak struct {
	Point
}

func (p Peak) String() string {
	return fmt.Sprintf("明日のピーク予想: %s 頃（約 %d 人）", p.Clock(), int(Displayed(p.Count)))
}

// Displayed rounds a predicted count to the one decimal printed on the
// curve. Peak selection and the peak line both work on this value.
func Displayed(count float64) float64 {
	return math.Round(count*10) / 10
}

// Grid describes prediction times as offsets from local midnight.
type Grid struct {
	Start time.Duration
	End   time.Duration
	Step  time.Duration
}

// DefaultGrid covers 11:00 to 14:00 inclusive every 10 minutes.
func DefaultGrid() Grid {
	return Grid{Start: 11 * time.Hour, End: 14 * time.Hour, Step: 10 * time.Minute}
}

// Validate checks the grid is non-empty and within one day.
func (g Grid) Validate() error {
	if g.Step <= 0 {
		return errors.New("grid step must be positive")
	}
	if g.Start < 0 || g.End >= 24*time.Hour {
		return fmt.Errorf("grid %v-%v must lie within one day", g.Start, g.End)
	}
	if g.End < g.Start {
		return fmt.Errorf("grid end %v is before start %v", g.End, g.Start)
	}
	return nil
}

// Times returns the grid instants on the calendar day of day, in day's
// location. End is included when it lands on a step.
func (g Grid) Times(day time.Time) []time.Time {
	y, m, d := day.Date()

	var out []time.Time
	for off := g.Start; off <= g.End; off += g.Step {
		h, mi := int(off/time.Hour), int(off%time.Hour/time.Minute)
		out = append(out, time.Date(y, m, d, h, mi, 0, 0, day.Location()))
	}
	return out
}

// Tomorrow returns the calendar day after now in loc.
func Tomorrow(now time.Time, loc *time.Location) time.Time {
	return now.In(loc).AddDate(0, 0, 1)
}

// FindPeak returns the first point with the strictly greatest displayed
// count, so points printing the same value resolve to the earliest time.
// ok is false for an empty slice.
func FindPeak(points []Point) (Peak, bool) {
	if len(points) == 0 {
		return Peak{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if Displayed(p.Count) > Displayed(best.Count) {
			best = p
		}
	}
	return Peak{Point: best}, true
}

// Report is the rendered result of one forecaster run.
type Report struct {
	Model  string
	Day    time.Time
	Points []Point
	Peak   Peak
}

// NewReport assembles a report and finds its peak.
func NewReport(model string, day time.Time, points []Point) (Report, error) {
	peak, ok := FindPeak(points)
	if !ok {
		return Report{}, errors.New("forecast has no points")
	}
	return Report{Model: model, Day: day, Points: points, Peak: peak}, nil
}

// WriteText prints the curve and the peak line.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "--- 明日の混雑予報 ---"); err != nil {
		return err
	}
	for _, p := range r.Points {
		if _, err := fmt.Fprintln(w, p.String()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "-------------------------"); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, r.Peak.String())
	return err
}
