// Package storage provides the remote state store for occupancy samples:
// a single overwritable latest snapshot plus an append-only history log.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// Store is the remote state sink written by the sensing loop and read by
// the forecaster.
//
// SetLatest overwrites the snapshot and is idempotent. AppendHistory adds
// one record per call, never deduplicates, and returns the store-assigned
// key. History returns every record in insertion order, including ones
// that lack a count or timestamp (Complete=false).
type Store interface {
	SetLatest(ctx context.Context, s occupancy.Sample) error
	AppendHistory(ctx context.Context, s occupancy.Sample) (string, error)
	GetLatest(ctx context.Context) (occupancy.Sample, bool, error)
	History(ctx context.Context) ([]HistoryRecord, error)
}

// HistoryRecord is one entry of the history log.
type HistoryRecord struct {
	Key      string
	Sample   occupancy.Sample
	Complete bool
}

// CompleteSamples filters records down to usable samples, dropping incomplete
// ones and negative counts. It returns the samples and the number dropped.
func CompleteSamples(records []HistoryRecord) ([]occupancy.Sample, int) {
	out := make([]occupancy.Sample, 0, len(records))
	dropped := 0
	for _, r := range records {
		if !r.Complete || r.Sample.Count < 0 {
			dropped++
			continue
		}
		out = append(out, r.Sample)
	}
	return out, dropped
}

// StatusError is returned when a backend answers with a non-success status.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// wireSample is the JSON encoding shared by every backend.
type wireSample struct {
	People    int   `json:"people"`
	Timestamp int64 `json:"timestamp"`
}

func encodeSample(s occupancy.Sample) ([]byte, error) {
	data, err := json.Marshal(wireSample{People: s.Count, Timestamp: s.Timestamp.Unix()})
	if err != nil {
		return nil, fmt.Errorf("marshal sample: %w", err)
	}
	return data, nil
}

func decodeSample(data []byte) (occupancy.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return occupancy.Sample{}, fmt.Errorf("unmarshal sample: %w", err)
	}
	return occupancy.Sample{Count: w.People, Timestamp: time.Unix(w.Timestamp, 0)}, nil
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendREST   = "rest"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// rest
	URL        string
	AuthToken  string
	HTTPClient *http.Client

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// sqlite
	SQLitePath string

	Logger *slog.Logger
}

// New builds the backend named by opts.Backend.
func New(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendMemory:
		logger.Info("using in-memory storage")
		return NewMemoryStore(), nil
	case BackendREST, "":
		logger.Info("using REST storage", "url", opts.URL)
		return NewRESTStore(opts.URL, opts.AuthToken, opts.HTTPClient)
	case BackendRedis:
		logger.Info("using Redis storage", "addr", opts.RedisAddr, "db", opts.RedisDB, "prefix", opts.RedisPrefix)
		return NewRedisStore(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	case BackendSQLite:
		logger.Info("using SQLite storage", "path", opts.SQLitePath)
		return NewSQLiteStore(opts.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected memory, rest, redis or sqlite)", opts.Backend)
	}
}

// Close releases backend resources when the store holds any.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
