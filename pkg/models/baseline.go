package models

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// BaselineModel predicts the mean occupancy observed in the same time slot.
//
// Training groups rows into slots of SlotMinutes (default 10) within the
// day and learns statistics at three levels:
//   - weekday + slot: e.g. Wednesdays 12:20 to 12:29
//   - slot: the same slot on any weekday
//   - hour: the same hour on any weekday
//
// Prediction uses the most specific level that has observations, falling
// back to the global mean. Values are clamped to be non-negative.
type BaselineModel struct {
	slotMinutes int

	weekdaySlot map[[2]int]*seasonalPattern
	slot        map[int]*seasonalPattern
	hour        map[int]*seasonalPattern
	global      *seasonalPattern

	// residualStdDev is the mean standard deviation across slot patterns,
	// used to derive quantile bands.
	residualStdDev float64
}

// seasonalPattern holds statistical summary for a recurring pattern
type seasonalPattern struct {
	mean   float64
	min    float64
	max    float64
	count  int
	stddev float64
}

// NewBaselineModel creates a baseline model with the given slot width in
// minutes. Non-positive widths fall back to 10.
func NewBaselineModel(slotMinutes int) *BaselineModel {
	if slotMinutes <= 0 {
		slotMinutes = 10
	}
	return &BaselineModel{slotMinutes: slotMinutes}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

var baselineColumns = []string{"weekday", "hour", "minute"}

func (m *BaselineModel) slotOf(hour, minute float64) int {
	return (int(hour)*60 + int(minute)) / m.slotMinutes
}

// Train learns slot statistics from rows carrying weekday, hour, minute and
// the target.
func (m *BaselineModel) Train(ctx context.Context, history FeatureFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x, y := matrix(history, baselineColumns, true)
	if len(y) == 0 {
		return errors.New("baseline: no training rows")
	}

	weekdaySlotValues := make(map[[2]int][]float64)
	slotValues := make(map[int][]float64)
	hourValues := make(map[int][]float64)

	for i, row := range x {
		wd, h, mi := int(row[0]), row[1], row[2]
		s := m.slotOf(h, mi)
		weekdaySlotValues[[2]int{wd, s}] = append(weekdaySlotValues[[2]int{wd, s}], y[i])
		slotValues[s] = append(slotValues[s], y[i])
		hourValues[int(h)] = append(hourValues[int(h)], y[i])
	}

	m.weekdaySlot = make(map[[2]int]*seasonalPattern, len(weekdaySlotValues))
	for k, v := range weekdaySlotValues {
		m.weekdaySlot[k] = computeSeasonalPattern(v)
	}
	m.slot = make(map[int]*seasonalPattern, len(slotValues))
	for k, v := range slotValues {
		m.slot[k] = computeSeasonalPattern(v)
	}
	m.hour = make(map[int]*seasonalPattern, len(hourValues))
	for k, v := range hourValues {
		m.hour[k] = computeSeasonalPattern(v)
	}
	m.global = computeSeasonalPattern(y)

	totalStdDev := 0.0
	patternCount := 0
	for _, p := range m.slot {
		if p.stddev > 0 {
			totalStdDev += p.stddev
			patternCount++
		}
	}
	if patternCount > 0 {
		m.residualStdDev = totalStdDev / float64(patternCount)
	} else {
		m.residualStdDev = m.global.stddev
	}

	return nil
}

// computeSeasonalPattern calculates statistical summary from a set of values
func computeSeasonalPattern(values []float64) *seasonalPattern {
	if len(values) == 0 {
		return nil
	}

	p := &seasonalPattern{min: values[0], max: values[0], count: len(values)}
	for _, v := range values {
		p.min = math.Min(p.min, v)
		p.max = math.Max(p.max, v)
	}
	if len(values) > 1 {
		p.mean, p.stddev = stat.MeanStdDev(values, nil)
	} else {
		p.mean = values[0]
	}
	return p
}

// lookup returns the most specific pattern for a grid row.
func (m *BaselineModel) lookup(row []float64) *seasonalPattern {
	wd, h, mi := int(row[0]), row[1], row[2]
	s := m.slotOf(h, mi)
	if p, ok := m.weekdaySlot[[2]int{wd, s}]; ok {
		return p
	}
	if p, ok := m.slot[s]; ok {
		return p
	}
	if p, ok := m.hour[int(h)]; ok {
		return p
	}
	return m.global
}

// Predict returns the slot mean for every grid row.
func (m *BaselineModel) Predict(ctx context.Context, grid FeatureFrame) (Forecast, error) {
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}
	if m.global == nil {
		return Forecast{}, errors.New("baseline: model not trained, call Train() first")
	}
	x, _ := matrix(grid, baselineColumns, false)
	if len(x) != len(grid.Rows) {
		return Forecast{}, errors.New("baseline: grid rows need weekday, hour and minute")
	}

	values := make([]float64, len(x))
	for i, row := range x {
		values[i] = math.Max(0, m.lookup(row).mean)
	}

	var quantiles map[float64][]float64
	if m.residualStdDev > 0 {
		quantileLevels := map[float64]float64{
			0.1: -1.282,
			0.5: 0.0,
			0.9: 1.282,
		}
		quantiles = make(map[float64][]float64, len(quantileLevels))
		for q, z := range quantileLevels {
			qValues := make([]float64, len(values))
			for i, v := range values {
				qValues[i] = math.Max(0, v+z*m.residualStdDev)
			}
			quantiles[q] = qValues
		}
	}

	return Forecast{Values: values, Quantiles: quantiles}, nil
}
