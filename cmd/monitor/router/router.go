// Package router configures the monitor's HTTP routes.
//
// Routes:
//   - GET /healthz     - 200 while the sensing loop runs, 503 after it stopped
//   - GET /metrics     - Prometheus metrics
//   - GET /status      - latest count, last publish time and frame counter
//   - GET /preview.jpg - latest annotated frame
package router

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/linecast/pkg/httpx"
	"github.com/HatiCode/linecast/pkg/overlay"
)

// Snapshot is the sensing loop state served at /status.
type Snapshot struct {
	People          int
	Timestamp       time.Time
	HasSample       bool
	LastPublish     time.Time
	FramesProcessed uint64
	Running         bool
}

// StatusProvider is implemented by the sensing loop.
type StatusProvider interface {
	Snapshot() Snapshot
	Healthy() error
}

type statusResponse struct {
	People          *int    `json:"people"`
	Timestamp       *int64  `json:"timestamp"`
	LastPublish     *string `json:"lastPublish"`
	FramesProcessed uint64  `json:"framesProcessed"`
	Running         bool    `json:"running"`
}

// SetupRoutes returns the monitor's mux. preview may be nil.
func SetupRoutes(status StatusProvider, preview *overlay.Preview, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(status.Healthy))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", handleStatus(status, logger))
	mux.HandleFunc("GET /preview.jpg", handlePreview(preview, logger))

	return mux
}

func handleStatus(status StatusProvider, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := status.Snapshot()
		resp := statusResponse{
			FramesProcessed: snap.FramesProcessed,
			Running:         snap.Running,
		}
		if snap.HasSample {
			people, ts := snap.People, snap.Timestamp.Unix()
			resp.People = &people
			resp.Timestamp = &ts
		}
		if !snap.LastPublish.IsZero() {
			lp := snap.LastPublish.Format(time.RFC3339)
			resp.LastPublish = &lp
		}

		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write status response", "error", err)
		}
	}
}

func handlePreview(preview *overlay.Preview, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if preview == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "preview disabled")
			return
		}
		data, count, at, ok := preview.JPEG()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "no frame processed yet")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
		w.Header().Set("X-Linecast-People", strconv.Itoa(count))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(data); err != nil {
			logger.Debug("preview write aborted", "error", err)
		}
	}
}
