package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New("forest")
	m.RecordStage("train", 1500*time.Millisecond)
	m.SetSamples(20, 2)
	m.RecordSuccess(38.5, time.Unix(1791977400, 0))
	m.RecordError("load", "insufficient_data")

	if got := testutil.ToFloat64(m.StageSeconds.WithLabelValues("train")); got != 1.5 {
		t.Errorf("train seconds = %v", got)
	}
	if got := testutil.ToFloat64(m.Samples.WithLabelValues("dropped")); got != 2 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.PeakPeople); got != 38.5 {
		t.Errorf("peak = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("load", "insufficient_data")); got != 1 {
		t.Errorf("errors = %v", got)
	}
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New("baseline")
	m.RecordSuccess(12, time.Unix(1791977400, 0))

	if err := m.Push(context.Background(), gateway.URL); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/"+Job {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotBody, "linecast_forecast_peak_people") {
		t.Error("pushed body does not contain the peak gauge")
	}
}

func TestMetrics_PushFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gateway.Close()

	if err := New("forest").Push(context.Background(), gateway.URL); err == nil {
		t.Error("expected error from failing gateway")
	}
}
