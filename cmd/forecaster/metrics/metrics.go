// Package metrics instruments a forecaster run.
//
// The forecaster is a one-shot job, so metrics are gauges describing the
// last run and are delivered to a Prometheus Pushgateway when one is
// configured.
//
// Metrics exposed:
//   - linecast_forecast_stage_seconds: duration of load, train and predict
//   - linecast_forecast_samples: usable and dropped history records
//   - linecast_forecast_peak_people: predicted peak count
//   - linecast_forecast_last_success_timestamp_seconds: completion time
//   - linecast_forecast_errors_total: failures by stage
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job label.
const Job = "linecast_forecaster"

// Metrics holds the forecaster's collectors.
type Metrics struct {
	registry *prometheus.Registry

	StageSeconds *prometheus.GaugeVec
	Samples      *prometheus.GaugeVec
	PeakPeople   prometheus.Gauge
	LastSuccess  prometheus.Gauge
	ErrorsTotal  *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New(model string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"model": model}

	return &Metrics{
		registry: reg,
		StageSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "linecast",
			Name:        "forecast_stage_seconds",
			Help:        "Duration of each forecaster stage in the last run",
			ConstLabels: labels,
		}, []string{"stage"}),
		Samples: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "linecast",
			Name:        "forecast_samples",
			Help:        "History records by state in the last run",
			ConstLabels: labels,
		}, []string{"state"}),
		PeakPeople: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "linecast",
			Name:        "forecast_peak_people",
			Help:        "Predicted peak occupancy for tomorrow",
			ConstLabels: labels,
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "linecast",
			Name:        "forecast_last_success_timestamp_seconds",
			Help:        "Unix time the last successful run finished",
			ConstLabels: labels,
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "linecast",
			Name:        "forecast_errors_total",
			Help:        "Forecaster failures by stage and reason",
			ConstLabels: labels,
		}, []string{"stage", "reason"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStage records how long a stage took.
func (m *Metrics) RecordStage(stage string, took time.Duration) {
	m.StageSeconds.WithLabelValues(stage).Set(took.Seconds())
}

// SetSamples records the usable and dropped history sizes.
func (m *Metrics) SetSamples(usable, dropped int) {
	m.Samples.WithLabelValues("usable").Set(float64(usable))
	m.Samples.WithLabelValues("dropped").Set(float64(dropped))
}

// RecordSuccess records the peak and completion time.
func (m *Metrics) RecordSuccess(peak float64, at time.Time) {
	m.PeakPeople.Set(peak)
	m.LastSuccess.Set(float64(at.Unix()))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage, reason string) {
	m.ErrorsTotal.WithLabelValues(stage, reason).Inc()
}

// Push sends the collectors to the Pushgateway at url, replacing the
// previous push for Job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, Job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
