// Package models selects the forecasting model named in the configuration.
package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/linecast/cmd/forecaster/config"
	"github.com/HatiCode/linecast/pkg/features"
	"github.com/HatiCode/linecast/pkg/httpx"
	"github.com/HatiCode/linecast/pkg/models"
)

// New creates the model selected by cfg.Model.
func New(cfg *config.Config, logger *slog.Logger) (models.Model, error) {
	switch cfg.Model {
	case config.ModelForest:
		band, err := cfg.PredictionBand()
		if err != nil {
			return nil, err
		}
		logger.Info("initializing forest model",
			"trees", cfg.Trees,
			"seed", cfg.Seed,
			"max_depth", cfg.MaxDepth,
			"min_leaf", cfg.MinLeaf,
			"band", band.String(),
		)
		return models.NewForestModel(models.ForestOptions{
			Features: features.Columns,
			Trees:    cfg.Trees,
			Seed:     cfg.Seed,
			MaxDepth: cfg.MaxDepth,
			MinLeaf:  cfg.MinLeaf,
			Levels:   band.Levels(),
		}), nil

	case config.ModelBaseline:
		logger.Info("initializing baseline model", "slot_minutes", cfg.SlotMinutes)
		return models.NewBaselineModel(cfg.SlotMinutes), nil

	case config.ModelRemote:
		client, err := httpx.NewClient(cfg.TLS, cfg.RemoteTimeout)
		if err != nil {
			return nil, fmt.Errorf("remote model client: %w", err)
		}
		logger.Info("initializing remote model", "url", cfg.RemoteURL)
		return models.NewRemoteModel(cfg.RemoteURL, client), nil

	default:
		return nil, fmt.Errorf("invalid model type %q", cfg.Model)
	}
}
