package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordFrame(120*time.Millisecond, 7)
	m.RecordFrame(80*time.Millisecond, 3)
	m.RecordPublish("line_status", 10*time.Millisecond, nil)
	m.RecordPublish("line_history", 10*time.Millisecond, errors.New("503"))
	m.RecordGateDrop()
	m.RecordTraining("written")
	m.RecordError("detector", "detect_failed")
	m.SetLastPublish(time.Unix(1791977400, 0))

	if got := testutil.ToFloat64(m.FramesProcessed); got != 2 {
		t.Errorf("frames = %v", got)
	}
	if got := testutil.ToFloat64(m.Occupancy); got != 3 {
		t.Errorf("occupancy = %v, want latest count", got)
	}
	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("line_history", "error")); got != 1 {
		t.Errorf("history errors = %v", got)
	}
	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("line_status", "ok")); got != 1 {
		t.Errorf("status ok = %v", got)
	}
	if got := testutil.ToFloat64(m.LastPublish); got != 1791977400 {
		t.Errorf("last publish = %v", got)
	}
	if got := testutil.ToFloat64(m.TrainingRows.WithLabelValues("written")); got != 1 {
		t.Errorf("training written = %v", got)
	}

	n, err := testutil.GatherAndCount(reg, "linecast_detect_seconds")
	if err != nil || n != 1 {
		t.Errorf("detect histogram count = %d, err = %v", n, err)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
