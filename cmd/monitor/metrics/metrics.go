// Package metrics provides Prometheus instrumentation for the sensing loop.
//
// Metrics exposed:
//   - linecast_frames_processed_total: frames that went through detection
//   - linecast_detect_seconds: detector round-trip latency
//   - linecast_occupancy_people: people counted in the latest frame
//   - linecast_publish_total: store writes by resource and outcome
//   - linecast_publish_seconds: store write latency by resource
//   - linecast_last_publish_timestamp_seconds: unix time of the last admitted cycle
//   - linecast_gate_dropped_total: cycles held back by the publish gate
//   - linecast_training_rows_total: training log results by outcome
//   - linecast_errors_total: errors by component and reason
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "linecast"

// Metrics holds the monitor's collectors.
type Metrics struct {
	FramesProcessed prometheus.Counter
	DetectSeconds   prometheus.Histogram
	Occupancy       prometheus.Gauge
	PublishTotal    *prometheus.CounterVec
	PublishSeconds  *prometheus.HistogramVec
	LastPublish     prometheus.Gauge
	GateDropped     prometheus.Counter
	TrainingRows    *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer in the binary).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames that completed detection",
		}),
		DetectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_seconds",
			Help:      "Time spent in the object detector per frame",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Occupancy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupancy_people",
			Help:      "People counted in the most recent frame",
		}),
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Remote store writes by resource and outcome",
		}, []string{"resource", "outcome"}),
		PublishSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_seconds",
			Help:      "Remote store write latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		LastPublish: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last admitted publish cycle",
		}),
		GateDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_dropped_total",
			Help:      "Cycles not published because the interval had not elapsed",
		}),
		TrainingRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_rows_total",
			Help:      "Training log results by outcome (written, skipped, error)",
		}, []string{"outcome"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordFrame counts a processed frame and the detector latency.
func (m *Metrics) RecordFrame(detect time.Duration, people int) {
	m.FramesProcessed.Inc()
	m.DetectSeconds.Observe(detect.Seconds())
	m.Occupancy.Set(float64(people))
}

// RecordPublish records one store write.
func (m *Metrics) RecordPublish(resource string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.PublishTotal.WithLabelValues(resource, outcome).Inc()
	m.PublishSeconds.WithLabelValues(resource).Observe(took.Seconds())
}

// SetLastPublish sets the last admitted cycle time.
func (m *Metrics) SetLastPublish(t time.Time) {
	m.LastPublish.Set(float64(t.Unix()))
}

// RecordGateDrop counts a cycle the gate held back.
func (m *Metrics) RecordGateDrop() {
	m.GateDropped.Inc()
}

// RecordTraining counts a training log outcome.
func (m *Metrics) RecordTraining(outcome string) {
	m.TrainingRows.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
