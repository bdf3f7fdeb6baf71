// Package main implements the one-shot forecast pipeline:
//
//	load → buildFeatures → train → predict → report
//
// Run loads the full occupancy history, fits the configured model on it and
// predicts tomorrow's grid. The caller prints or renders the Report.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/linecast/cmd/forecaster/metrics"
	"github.com/HatiCode/linecast/pkg/features"
	"github.com/HatiCode/linecast/pkg/forecast"
	"github.com/HatiCode/linecast/pkg/models"
	"github.com/HatiCode/linecast/pkg/occupancy"
	"github.com/HatiCode/linecast/pkg/storage"
)

// Forecaster runs one forecast from stored history.
type Forecaster struct {
	store       storage.Store
	model       models.Model
	builder     features.Builder
	grid        forecast.Grid
	band        forecast.Band
	minSamples  int
	loadTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates a Forecaster. Fitting requires more than minSamples usable
// samples.
func New(
	store storage.Store,
	model models.Model,
	builder features.Builder,
	grid forecast.Grid,
	minSamples int,
	loadTimeout time.Duration,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if loadTimeout <= 0 {
		loadTimeout = 30 * time.Second
	}
	if builder.Location == nil {
		builder = features.NewBuilder(nil)
	}

	return &Forecaster{
		store:       store,
		model:       model,
		builder:     builder,
		grid:        grid,
		band:        forecast.DefaultBand,
		minSamples:  minSamples,
		loadTimeout: loadTimeout,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithBand sets the quantile levels copied into each point's Low and High.
func (f *Forecaster) WithBand(b forecast.Band) *Forecaster {
	f.band = b
	return f
}

// Run executes the pipeline and returns tomorrow's report.
// forecast.ErrInsufficientData is returned, wrapped, when the history is
// too small; no model is fitted in that case.
func (f *Forecaster) Run(ctx context.Context) (forecast.Report, error) {
	samples, err := f.load(ctx)
	if err != nil {
		f.recordError("load", err)
		return forecast.Report{}, err
	}

	if len(samples) <= f.minSamples {
		err := fmt.Errorf("%w: %d usable samples, need more than %d", forecast.ErrInsufficientData, len(samples), f.minSamples)
		f.recordError("load", err)
		return forecast.Report{}, err
	}

	if err := f.train(ctx, samples); err != nil {
		f.recordError("train", err)
		return forecast.Report{}, err
	}

	report, err := f.predict(ctx)
	if err != nil {
		f.recordError("predict", err)
		return forecast.Report{}, err
	}

	if f.metrics != nil {
		f.metrics.RecordSuccess(report.Peak.Count, f.now())
	}
	return report, nil
}

// load fetches the history and keeps the complete, non-negative samples.
func (f *Forecaster) load(ctx context.Context) ([]occupancy.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, f.loadTimeout)
	defer cancel()

	start := time.Now()
	records, err := f.store.History(ctx)
	took := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	samples, dropped := storage.CompleteSamples(records)
	if dropped > 0 {
		f.logger.Debug("skipped malformed history records", "dropped", dropped)
	}
	f.logger.Info("history loaded", "records", len(records), "usable", len(samples), "duration_ms", took.Milliseconds())
	if f.metrics != nil {
		f.metrics.RecordStage("load", took)
		f.metrics.SetSamples(len(samples), dropped)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: history is empty", forecast.ErrInsufficientData)
	}
	return samples, nil
}

func (f *Forecaster) train(ctx context.Context, samples []occupancy.Sample) error {
	start := time.Now()
	if err := f.model.Train(ctx, f.builder.Training(samples)); err != nil {
		return fmt.Errorf("train %s: %w", f.model.Name(), err)
	}
	took := time.Since(start)

	f.logger.Info("model trained", "model", f.model.Name(), "samples", len(samples), "duration_ms", took.Milliseconds())
	if f.metrics != nil {
		f.metrics.RecordStage("train", took)
	}
	return nil
}

func (f *Forecaster) predict(ctx context.Context) (forecast.Report, error) {
	day := forecast.Tomorrow(f.now(), f.builder.Location)
	times := f.grid.Times(day)

	start := time.Now()
	fc, err := f.model.Predict(ctx, f.builder.Grid(times))
	if err != nil {
		return forecast.Report{}, fmt.Errorf("predict: %w", err)
	}
	took := time.Since(start)
	if len(fc.Values) != len(times) {
		return forecast.Report{}, fmt.Errorf("predict: model returned %d values for %d grid points", len(fc.Values), len(times))
	}
	if f.metrics != nil {
		f.metrics.RecordStage("predict", took)
	}

	points := make([]forecast.Point, len(times))
	for i, t := range times {
		points[i] = forecast.Point{
			Time:  t,
			Count: fc.Values[i],
			Low:   quantileOr(fc, f.band.Low, i),
			High:  quantileOr(fc, f.band.High, i),
		}
	}

	report, err := forecast.NewReport(f.model.Name(), day, points)
	if err != nil {
		return forecast.Report{}, err
	}
	f.logger.Info("forecast ready", "day", day.Format("2006-01-02"), "points", len(points), "peak", report.Peak.Clock())
	return report, nil
}

// quantileOr returns the i-th value at level q, or the point prediction
// when the model has no such quantile.
func quantileOr(fc models.Forecast, q float64, i int) float64 {
	if vals, ok := fc.Quantiles[q]; ok && i < len(vals) {
		return vals[i]
	}
	return fc.Values[i]
}

func (f *Forecaster) recordError(stage string, err error) {
	if f.metrics == nil {
		return
	}
	reason := "failed"
	if errors.Is(err, forecast.ErrInsufficientData) {
		reason = "insufficient_data"
	}
	f.metrics.RecordError(stage, reason)
}
