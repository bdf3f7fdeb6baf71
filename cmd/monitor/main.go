// Command monitor runs the queue sensing loop.
//
// It reads frames from a camera, counts people with a remote object
// detector, and publishes the count to the state store at most once per
// publish interval. Counts taken inside the lunch window are also appended
// to a local CSV training log.
//
// The monitor serves on port 8090 (configurable):
//   - GET /healthz     - Health check, 503 once the loop has stopped
//   - GET /metrics     - Prometheus metrics
//   - GET /status      - Latest count and publish time
//   - GET /preview.jpg - Latest annotated frame
//
// and, when GRPC_LISTEN is set, the standard gRPC health service.
//
// Usage:
//
//	monitor \
//	  -source=mjpeg -source-url=http://camera.local/stream \
//	  -detector-url=http://detector:8000/detect \
//	  -storage=rest -store-url=https://example-rtdb.firebaseio.com
//
// Environment variables:
//
//	SOURCE_KIND      - dir, snapshot or mjpeg (default: mjpeg)
//	SOURCE_URL       - Frame source location (required)
//	DETECTOR_URL     - Detection endpoint (required)
//	STORAGE          - rest, redis, sqlite or memory (default: rest)
//	STORE_URL        - REST store base URL
//	PUBLISH_INTERVAL - Minimum time between publishes (default: 1s)
//	PUBLISH_TIMEOUT  - Timeout per store write (default: 5s)
//	TRAINING_FILE    - Training CSV path (default: ai_training_data.csv)
//	TZ_NAME          - Timezone for clock fields (default: Asia/Tokyo)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/linecast/cmd/monitor/config"
	"github.com/HatiCode/linecast/cmd/monitor/logger"
	"github.com/HatiCode/linecast/cmd/monitor/metrics"
	"github.com/HatiCode/linecast/cmd/monitor/router"
	"github.com/HatiCode/linecast/pkg/detect"
	"github.com/HatiCode/linecast/pkg/frames"
	"github.com/HatiCode/linecast/pkg/httpx"
	"github.com/HatiCode/linecast/pkg/overlay"
	"github.com/HatiCode/linecast/pkg/recorder"
	"github.com/HatiCode/linecast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting linecast monitor",
		"version", version,
		"source", cfg.SourceKind,
		"storage", cfg.Storage,
		"publish_interval", cfg.PublishInterval,
	)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	sourceClient, err := httpx.NewClient(cfg.ClientTLS, 0)
	if err != nil {
		logger.Error("failed to build camera client", "error", err)
		os.Exit(1)
	}
	// The MJPEG stream is long-lived; only snapshot requests get a deadline.
	if cfg.SourceKind == "snapshot" {
		sourceClient.Timeout = cfg.SourceTimeout
	}
	source, err := frames.New(cfg.SourceKind, cfg.SourceURL, sourceClient)
	if err != nil {
		logger.Error("failed to open frame source", "error", err)
		os.Exit(1)
	}

	detectorClient, err := httpx.NewClient(cfg.ClientTLS, cfg.DetectorTimeout)
	if err != nil {
		logger.Error("failed to build detector client", "error", err)
		os.Exit(1)
	}
	detector := detect.NewHTTPDetector(cfg.DetectorURL, detectorClient)

	storeClient, err := httpx.NewClient(cfg.ClientTLS, cfg.PublishTimeout)
	if err != nil {
		logger.Error("failed to build store client", "error", err)
		os.Exit(1)
	}
	store, err := storage.New(storage.Options{
		Backend:       cfg.Storage,
		URL:           cfg.StoreURL,
		AuthToken:     cfg.StoreAuth,
		HTTPClient:    storeClient,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
		SQLitePath:    cfg.SQLitePath,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(store); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	rec := recorder.New(cfg.TrainingFile,
		recorder.WithWindow(cfg.Window()),
		recorder.WithLocation(loc),
		recorder.WithLogger(logger),
		recorder.WithResultHook(m.RecordTraining),
	)
	preview := overlay.NewPreview(cfg.PreviewQuality)

	mon := New(source, detector, store, rec, preview, Settings{
		Detect:          cfg.DetectOptions(),
		PublishInterval: cfg.PublishInterval,
		PublishTimeout:  cfg.PublishTimeout,
	}, logger, m)

	mux := router.SetupRoutes(mon, preview, logger)
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(logger), httpx.LoggingMiddleware(logger))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger).WithTLS(cfg.ServerTLS)

	var grpcHealth *healthServer
	if cfg.GRPCListen != "" {
		grpcHealth, err = newHealthServer(cfg.GRPCListen, cfg.ServerTLS, logger)
		if err != nil {
			logger.Error("failed to start grpc health server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := grpcHealth.Serve(); err != nil {
				logger.Error("grpc health server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sensing loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-mon.Done():
		logger.Info("sensing loop ended")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	if grpcHealth != nil {
		grpcHealth.SetServing(false)
	}
	cancel()
	<-mon.Done()

	if grpcHealth != nil {
		grpcHealth.Stop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
