// Command forecaster predicts tomorrow's lunchtime queue.
//
// It loads the occupancy history from the state store, fits a regression
// model on calendar features (weekday, hour, minute, minute of day) and
// prints the predicted count every 10 minutes from 11:00 to 14:00 tomorrow,
// followed by the expected peak. The run exits 1 when the history is too
// small to fit.
//
// Usage:
//
//	forecaster -storage=rest -store-url=https://example-rtdb.firebaseio.com
//
// Environment variables:
//
//	STORAGE         - rest, redis, sqlite or memory (default: rest)
//	STORE_URL       - REST store base URL
//	MODEL           - forest, baseline or remote (default: forest)
//	TREES           - Forest size (default: 100)
//	SEED            - Forest seed (default: 42)
//	MIN_SAMPLES     - Minimum usable samples, exclusive (default: 10)
//	BAND            - Prediction band quantiles (default: p10,p90)
//	GRID_START      - First prediction time (default: 11:00)
//	GRID_END        - Last prediction time (default: 14:00)
//	GRID_STEP       - Prediction spacing (default: 10m)
//	TZ_NAME         - Cafeteria timezone (default: Asia/Tokyo)
//	CHART_PNG       - Optional PNG chart path
//	CHART_HTML      - Optional HTML chart path
//	PUSHGATEWAY_URL - Optional Prometheus Pushgateway
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/linecast/cmd/forecaster/config"
	"github.com/HatiCode/linecast/cmd/forecaster/logger"
	"github.com/HatiCode/linecast/cmd/forecaster/metrics"
	"github.com/HatiCode/linecast/cmd/forecaster/models"
	"github.com/HatiCode/linecast/pkg/chart"
	"github.com/HatiCode/linecast/pkg/features"
	"github.com/HatiCode/linecast/pkg/forecast"
	"github.com/HatiCode/linecast/pkg/httpx"
	"github.com/HatiCode/linecast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting linecast forecaster",
		"version", version,
		"storage", cfg.Storage,
		"model", cfg.Model,
	)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		return 1
	}
	grid, err := cfg.Grid()
	if err != nil {
		logger.Error("invalid grid", "error", err)
		return 1
	}
	band, err := cfg.PredictionBand()
	if err != nil {
		logger.Error("invalid band", "error", err)
		return 1
	}

	storeClient, err := httpx.NewClient(cfg.TLS, cfg.LoadTimeout)
	if err != nil {
		logger.Error("failed to build store client", "error", err)
		return 1
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
		return 1
	}
	defer func() {
		if err := storage.Close(store); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	model, err := models.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create model", "error", err)
		return 1
	}

	m := metrics.New(model.Name())
	if cfg.PushgatewayURL != "" {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.Push(ctx, cfg.PushgatewayURL); err != nil {
				logger.Warn("failed to push metrics", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	f := New(store, model, features.NewBuilder(loc), grid, cfg.MinSamples, cfg.LoadTimeout, logger, m).
		WithBand(band)
	report, err := f.Run(ctx)
	if errors.Is(err, forecast.ErrInsufficientData) {
		logger.Error("not enough history to forecast", "error", err, "min_samples", cfg.MinSamples)
		return 1
	}
	if err != nil {
		logger.Error("forecast failed", "error", err)
		return 1
	}

	if err := report.WriteText(os.Stdout); err != nil {
		logger.Error("failed to write report", "error", err)
		return 1
	}

	if cfg.ChartPNG != "" {
		if err := chart.WritePNG(report, cfg.ChartPNG); err != nil {
			logger.Error("failed to write PNG chart", "error", err)
			return 1
		}
		logger.Info("wrote chart", "path", cfg.ChartPNG)
	}
	if cfg.ChartHTML != "" {
		if err := chart.WriteHTMLFile(report, cfg.ChartHTML); err != nil {
			logger.Error("failed to write HTML chart", "error", err)
			return 1
		}
		logger.Info("wrote chart", "path", cfg.ChartHTML)
	}

	return 0
}
