// Package models holds the regression models the forecaster can fit on
// occupancy history.
//
// A model is trained on a FeatureFrame whose rows carry the calendar
// features plus the Target column, then asked for one prediction per row of
// a second FeatureFrame (the prediction grid) that lacks the target.
package models

import "context"

// Target is the column every training row must carry.
const Target = "people"

// FeatureFrame is a table of named numeric columns, one map per row.
type FeatureFrame struct {
	Rows []map[string]float64
}

// Forecast holds one prediction per grid row.
type Forecast struct {
	Values []float64

	// Quantiles maps a level (0.1, 0.5, 0.9) to per-row values aligned with
	// Values. Nil when the model cannot estimate spread.
	Quantiles map[float64][]float64
}

// Model is a trainable regressor over feature rows.
type Model interface {
	Name() string
	Train(ctx context.Context, history FeatureFrame) error
	Predict(ctx context.Context, grid FeatureFrame) (Forecast, error)
}

// matrix extracts the named columns and the target. Rows missing any column
// are skipped.
func matrix(frame FeatureFrame, columns []string, withTarget bool) ([][]float64, []float64) {
	x := make([][]float64, 0, len(frame.Rows))
	var y []float64
	if withTarget {
		y = make([]float64, 0, len(frame.Rows))
	}

rows:
	for _, row := range frame.Rows {
		vec := make([]float64, len(columns))
		for i, c := range columns {
			v, ok := row[c]
			if !ok {
				continue rows
			}
			vec[i] = v
		}
		if withTarget {
			t, ok := row[Target]
			if !ok {
				continue
			}
			y = append(y, t)
		}
		x = append(x, vec)
	}
	return x, y
}
