package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// MemoryStore implements Store in process memory.
// It is safe for concurrent use by multiple goroutines.
//
// Nothing survives a restart; use it for tests and dry runs. History keys
// are random UUIDs.
type MemoryStore struct {
	mu        sync.RWMutex
	latest    occupancy.Sample
	hasLatest bool
	history   []HistoryRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SetLatest replaces the latest snapshot.
func (s *MemoryStore) SetLatest(ctx context.Context, sample occupancy.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = sample
	s.hasLatest = true
	return nil
}

// AppendHistory appends sample under a new key.
func (s *MemoryStore) AppendHistory(ctx context.Context, sample occupancy.Sample) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, HistoryRecord{Key: key, Sample: sample, Complete: true})
	return key, nil
}

// AppendRecord appends a raw record as-is, including incomplete ones.
// An empty key is replaced with a fresh UUID.
func (s *MemoryStore) AppendRecord(rec HistoryRecord) string {
	if rec.Key == "" {
		rec.Key = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	return rec.Key
}

// GetLatest returns the latest snapshot, if one was set.
func (s *MemoryStore) GetLatest(ctx context.Context) (occupancy.Sample, bool, error) {
	if err := ctx.Err(); err != nil {
		return occupancy.Sample{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest, s.hasLatest, nil
}

// History returns a copy of the history log in insertion order.
func (s *MemoryStore) History(ctx context.Context) ([]HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryRecord, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Len returns the number of history records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
