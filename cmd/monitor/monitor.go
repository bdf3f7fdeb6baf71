// Package main implements the sensing loop.
//
// Each iteration runs
//
//	frame → detect → count → preview → gate → {SetLatest, AppendHistory, training log}
//
// sequentially on one goroutine. Run returns when the frame source ends or
// fails, or when the context is canceled; the source is closed on every
// exit path.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/HatiCode/linecast/cmd/monitor/metrics"
	"github.com/HatiCode/linecast/cmd/monitor/router"
	"github.com/HatiCode/linecast/pkg/detect"
	"github.com/HatiCode/linecast/pkg/frames"
	"github.com/HatiCode/linecast/pkg/gate"
	"github.com/HatiCode/linecast/pkg/occupancy"
	"github.com/HatiCode/linecast/pkg/overlay"
	"github.com/HatiCode/linecast/pkg/recorder"
	"github.com/HatiCode/linecast/pkg/storage"
)

// Resource names used in logs and metrics.
const (
	resourceStatus  = "line_status"
	resourceHistory = "line_history"
)

// Settings are the loop's tunables.
type Settings struct {
	Detect          detect.Options
	PublishInterval time.Duration
	PublishTimeout  time.Duration
}

// Monitor owns the sensing loop and its publish gate.
type Monitor struct {
	source    frames.Source
	detector  detect.Detector
	estimator occupancy.Estimator
	gate      *gate.Gate
	store     storage.Store
	recorder  *recorder.Recorder
	preview   *overlay.Preview
	settings  Settings
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	frames  atomic.Uint64
	last    atomic.Pointer[occupancy.Sample]
	stopped atomic.Bool
	done    chan struct{}
}

// New creates a Monitor. recorder, preview and metrics may be nil.
func New(
	source frames.Source,
	detector detect.Detector,
	store storage.Store,
	rec *recorder.Recorder,
	preview *overlay.Preview,
	settings Settings,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.PublishTimeout <= 0 {
		settings.PublishTimeout = 5 * time.Second
	}

	return &Monitor{
		source:    source,
		detector:  detector,
		estimator: occupancy.Estimator{MinConfidence: settings.Detect.MinConfidence},
		gate:      gate.New(settings.PublishInterval),
		store:     store,
		recorder:  rec,
		preview:   preview,
		settings:  settings,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Run processes frames until the source ends or ctx is canceled.
// End of stream and source failures return nil; cancellation returns
// ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)
	defer m.stopped.Store(true)
	defer func() {
		if err := m.source.Close(); err != nil {
			m.logger.Warn("failed to close frame source", "source", m.source.Name(), "error", err)
		}
	}()

	m.logger.Info("starting sensing loop",
		"source", m.source.Name(),
		"detector", m.detector.Name(),
		"publish_interval", m.gate.Interval(),
		"image_size", m.settings.Detect.ImageSize,
		"min_confidence", m.settings.Detect.MinConfidence,
	)

	for {
		if err := ctx.Err(); err != nil {
			m.logger.Info("sensing loop stopped", "frames", m.frames.Load())
			return err
		}

		frame, err := m.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.logger.Info("sensing loop stopped", "frames", m.frames.Load())
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				m.logger.Info("frame source exhausted", "source", m.source.Name(), "frames", m.frames.Load())
				return nil
			}
			m.logger.Error("frame source failed, stopping loop", "source", m.source.Name(), "error", err)
			if m.metrics != nil {
				m.metrics.RecordError("source", "read_failed")
			}
			return nil
		}

		if _, err := m.Step(ctx, frame); err != nil {
			m.logger.Warn("skipping frame", "seq", frame.Seq, "error", err)
		}
	}
}

// Step runs one iteration on frame and reports whether the gate admitted
// it. An error means detection failed and nothing was published.
// Exported for testing purposes.
func (m *Monitor) Step(ctx context.Context, frame frames.Frame) (bool, error) {
	start := time.Now()
	dets, err := m.detector.Detect(ctx, frame, m.settings.Detect)
	took := time.Since(start)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordError("detector", "detect_failed")
		}
		return false, fmt.Errorf("detect: %w", err)
	}

	count := m.estimator.Estimate(dets)
	now := m.now()
	sample := occupancy.NewSample(count, now)

	m.frames.Add(1)
	m.last.Store(&sample)
	if m.metrics != nil {
		m.metrics.RecordFrame(took, count)
	}
	m.logger.Debug("frame processed", "seq", frame.Seq, "people", count, "detections", len(dets), "detect_ms", took.Milliseconds())

	if m.preview != nil && frame.Image != nil {
		if err := m.preview.Update(frame.Image, count, dets, now); err != nil {
			m.logger.Debug("preview update failed", "error", err)
		}
	}

	if !m.gate.Admit(now) {
		if m.metrics != nil {
			m.metrics.RecordGateDrop()
		}
		return false, nil
	}

	m.publish(ctx, sample)
	if m.metrics != nil {
		m.metrics.SetLastPublish(now)
	}
	if m.recorder != nil {
		m.recorder.RecordIfInWindow(sample)
	}
	return true, nil
}

// publish writes s to both store resources. Each write has its own
// timeout and a failure of one does not affect the other.
func (m *Monitor) publish(ctx context.Context, s occupancy.Sample) {
	m.write(ctx, resourceStatus, func(ctx context.Context) error {
		return m.store.SetLatest(ctx, s)
	})
	m.write(ctx, resourceHistory, func(ctx context.Context) error {
		key, err := m.store.AppendHistory(ctx, s)
		if err == nil {
			m.logger.Debug("history appended", "key", key)
		}
		return err
	})
}

func (m *Monitor) write(ctx context.Context, resource string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, m.settings.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if m.metrics != nil {
		m.metrics.RecordPublish(resource, time.Since(start), err)
	}
	if err == nil {
		return
	}

	attrs := []any{"resource", resource, "error", err}
	var statusErr *storage.StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs, "status", statusErr.Code)
	}
	m.logger.Error("publish failed", attrs...)
}

// Snapshot reports the loop state for the status endpoint.
func (m *Monitor) Snapshot() router.Snapshot {
	snap := router.Snapshot{
		FramesProcessed: m.frames.Load(),
		Running:         !m.stopped.Load(),
	}
	if s := m.last.Load(); s != nil {
		snap.People = s.Count
		snap.Timestamp = s.Timestamp
		snap.HasSample = true
	}
	if t, ok := m.gate.LastPublish(); ok {
		snap.LastPublish = t
	}
	return snap
}

// Healthy returns an error once the loop has stopped.
func (m *Monitor) Healthy() error {
	if m.stopped.Load() {
		return errors.New("sensing loop stopped")
	}
	return nil
}

// Done is closed when Run returns.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}
