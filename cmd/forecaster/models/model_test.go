package models

import (
	"io"
	"log/slog"
	"testing"

	"github.com/HatiCode/linecast/cmd/forecaster/config"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		cfg      config.Config
		wantName string
		wantErr  bool
	}{
		{cfg: config.Config{Model: config.ModelForest, Trees: 10, Seed: 42, Band: "p10,p90"}, wantName: "forest"},
		{cfg: config.Config{Model: config.ModelForest, Trees: 10, Band: "wide"}, wantErr: true},
		{cfg: config.Config{Model: config.ModelBaseline, SlotMinutes: 10}, wantName: "baseline"},
		{cfg: config.Config{Model: config.ModelRemote, RemoteURL: "http://model:8000/predict"}, wantName: "remote"},
		{cfg: config.Config{Model: "prophet"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Model+tt.cfg.Band, func(t *testing.T) {
			m, err := New(&tt.cfg, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && m.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", m.Name(), tt.wantName)
			}
		})
	}
}
