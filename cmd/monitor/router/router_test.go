package router

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HatiCode/linecast/pkg/overlay"
)

type fakeStatus struct {
	snap Snapshot
	err  error
}

func (f *fakeStatus) Snapshot() Snapshot { return f.snap }
func (f *fakeStatus) Healthy() error     { return f.err }

func serve(t *testing.T, mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthz(t *testing.T) {
	status := &fakeStatus{}
	mux := SetupRoutes(status, nil, discard())

	if w := serve(t, mux, http.MethodGet, "/healthz"); w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("healthy: %d %q", w.Code, w.Body.String())
	}

	status.err = errors.New("sensing loop stopped")
	if w := serve(t, mux, http.MethodGet, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped: status %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := SetupRoutes(&fakeStatus{}, nil, discard())
	w := serve(t, mux, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") == "" {
		t.Errorf("metrics: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestStatus(t *testing.T) {
	status := &fakeStatus{snap: Snapshot{FramesProcessed: 0, Running: true}}
	mux := SetupRoutes(status, nil, discard())

	var body map[string]any
	w := serve(t, mux, http.MethodGet, "/status")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["people"] != nil || body["lastPublish"] != nil || body["running"] != true {
		t.Errorf("empty status = %v", body)
	}

	ts := time.Date(2026, 10, 14, 11, 30, 0, 0, time.UTC)
	status.snap = Snapshot{People: 6, Timestamp: ts, HasSample: true, LastPublish: ts, FramesProcessed: 42, Running: true}
	w = serve(t, mux, http.MethodGet, "/status")
	body = nil
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["people"] != float64(6) || body["timestamp"] != float64(1791977400) {
		t.Errorf("people/timestamp = %v/%v", body["people"], body["timestamp"])
	}
	if body["lastPublish"] != "2026-10-14T11:30:00Z" || body["framesProcessed"] != float64(42) {
		t.Errorf("status = %v", body)
	}

	if w := serve(t, mux, http.MethodPost, "/status"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want 405", w.Code)
	}
}

func TestPreview(t *testing.T) {
	if w := serve(t, SetupRoutes(&fakeStatus{}, nil, discard()), http.MethodGet, "/preview.jpg"); w.Code != http.StatusNotFound {
		t.Errorf("disabled preview = %d", w.Code)
	}

	preview := overlay.NewPreview(70)
	mux := SetupRoutes(&fakeStatus{}, preview, discard())
	if w := serve(t, mux, http.MethodGet, "/preview.jpg"); w.Code != http.StatusNotFound {
		t.Errorf("empty preview = %d", w.Code)
	}

	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	if err := preview.Update(image.NewRGBA(image.Rect(0, 0, 32, 24)), 3, nil, at); err != nil {
		t.Fatal(err)
	}

	w := serve(t, mux, http.MethodGet, "/preview.jpg")
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Header().Get("X-Linecast-People"); got != "3" {
		t.Errorf("X-Linecast-People = %q", got)
	}
	if got := w.Header().Get("Last-Modified"); got != "Wed, 14 Oct 2026 12:00:00 GMT" {
		t.Errorf("Last-Modified = %q", got)
	}
	if b := w.Body.Bytes(); len(b) < 2 || b[0] != 0xFF || b[1] != 0xD8 {
		t.Error("body is not a JPEG")
	}

	if w := serve(t, mux, http.MethodHead, "/preview.jpg"); w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("HEAD preview = %d, %d bytes", w.Code, w.Body.Len())
	}
}
