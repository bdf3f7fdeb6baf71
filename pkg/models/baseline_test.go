package models

import (
	"context"
	"math"
	"testing"
)

func TestBaselineModel_Name(t *testing.T) {
	model := NewBaselineModel(10)
	if got := model.Name(); got != "baseline" {
		t.Errorf("Name() = %q, want %q", got, "baseline")
	}
}

func TestBaselineModel_FallbackLevels(t *testing.T) {
	history := FeatureFrame{Rows: []map[string]float64{
		// Wednesday 12:00-12:09 slot
		{"weekday": 2, "hour": 12, "minute": 0, "people": 10},
		{"weekday": 2, "hour": 12, "minute": 5, "people": 20},
		// Monday, same slot
		{"weekday": 0, "hour": 12, "minute": 2, "people": 30},
		// Monday 12:30 slot
		{"weekday": 0, "hour": 12, "minute": 30, "people": 40},
		// Monday 13:00 slot
		{"weekday": 0, "hour": 13, "minute": 0, "people": 2},
	}}

	model := NewBaselineModel(10)
	if err := model.Train(context.Background(), history); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	tests := []struct {
		name string
		row  map[string]float64
		want float64
	}{
		{name: "weekday and slot", row: map[string]float64{"weekday": 2, "hour": 12, "minute": 0}, want: 15},
		{name: "slot on other weekday", row: map[string]float64{"weekday": 4, "hour": 12, "minute": 9}, want: 20},
		{name: "hour only", row: map[string]float64{"weekday": 2, "hour": 12, "minute": 50}, want: 25},
		{name: "global", row: map[string]float64{"weekday": 2, "hour": 11, "minute": 0}, want: 20.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := model.Predict(context.Background(), FeatureFrame{Rows: []map[string]float64{tt.row}})
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if math.Abs(fc.Values[0]-tt.want) > 1e-9 {
				t.Errorf("value = %v, want %v", fc.Values[0], tt.want)
			}
		})
	}
}

func TestBaselineModel_Quantiles(t *testing.T) {
	history := FeatureFrame{Rows: []map[string]float64{
		{"weekday": 2, "hour": 12, "minute": 0, "people": 10},
		{"weekday": 2, "hour": 12, "minute": 1, "people": 20},
	}}
	model := NewBaselineModel(10)
	if err := model.Train(context.Background(), history); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	fc, err := model.Predict(context.Background(), FeatureFrame{Rows: []map[string]float64{{"weekday": 2, "hour": 12, "minute": 0}}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(fc.Quantiles) != 3 {
		t.Fatalf("expected 3 quantile levels, got %d", len(fc.Quantiles))
	}
	if !(fc.Quantiles[0.1][0] < fc.Quantiles[0.5][0] && fc.Quantiles[0.5][0] < fc.Quantiles[0.9][0]) {
		t.Errorf("quantiles not ordered: %v", fc.Quantiles)
	}
	if fc.Quantiles[0.5][0] != fc.Values[0] {
		t.Errorf("median %v differs from value %v", fc.Quantiles[0.5][0], fc.Values[0])
	}
}

func TestBaselineModel_Errors(t *testing.T) {
	model := NewBaselineModel(0)
	if _, err := model.Predict(context.Background(), FeatureFrame{Rows: []map[string]float64{{"weekday": 0, "hour": 12, "minute": 0}}}); err == nil {
		t.Error("expected error before Train")
	}
	if err := model.Train(context.Background(), FeatureFrame{Rows: []map[string]float64{{"hour": 12}}}); err == nil {
		t.Error("expected error when no row carries the target")
	}
}

func TestComputeSeasonalPattern(t *testing.T) {
	p := computeSeasonalPattern([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if p.mean != 5 || p.min != 2 || p.max != 9 || p.count != 8 {
		t.Errorf("unexpected pattern %+v", p)
	}
	// Sample standard deviation of the set above.
	if math.Abs(p.stddev-2.138089935) > 1e-6 {
		t.Errorf("stddev = %v", p.stddev)
	}
	if computeSeasonalPattern(nil) != nil {
		t.Error("empty input should give nil pattern")
	}
}
