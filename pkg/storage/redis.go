package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// DefaultRedisPrefix namespaces every key the RedisStore touches.
const DefaultRedisPrefix = "linecast"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore implements Store on Redis. The latest snapshot is a plain
// string key holding the JSON sample; the history log is a stream whose
// entry IDs serve as history keys.
//
// Keys:
//   - {prefix}:line_status   latest snapshot
//   - {prefix}:line_history  history stream (fields people, timestamp)
type RedisStore struct {
	client     *redis.Client
	statusKey  string
	historyKey string

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection with PING.
// Commands are never retried: a failed publish is dropped by the caller.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   -1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{
		client:     client,
		statusKey:  opts.Prefix + ":line_status",
		historyKey: opts.Prefix + ":line_history",
	}, nil
}

// SetLatest overwrites the snapshot key.
func (r *RedisStore) SetLatest(ctx context.Context, s occupancy.Sample) error {
	data, err := encodeSample(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.statusKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set latest in redis: %w", err)
	}
	return nil
}

// AppendHistory adds one stream entry and returns its ID.
func (r *RedisStore) AppendHistory(ctx context.Context, s occupancy.Sample) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.historyKey,
		Values: map[string]any{
			"people":    s.Count,
			"timestamp": s.Timestamp.Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append history to redis: %w", err)
	}
	return id, nil
}

// GetLatest reads the snapshot key.
func (r *RedisStore) GetLatest(ctx context.Context) (occupancy.Sample, bool, error) {
	data, err := r.client.Get(ctx, r.statusKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return occupancy.Sample{}, false, nil
		}
		return occupancy.Sample{}, false, fmt.Errorf("get latest from redis: %w", err)
	}

	s, err := decodeSample(data)
	if err != nil {
		return occupancy.Sample{}, false, err
	}
	return s, true, nil
}

// History reads the whole stream.
func (r *RedisStore) History(ctx context.Context) ([]HistoryRecord, error) {
	msgs, err := r.client.XRange(ctx, r.historyKey, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read history from redis: %w", err)
	}

	out := make([]HistoryRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, streamRecord(m))
	}
	return out, nil
}

func streamRecord(m redis.XMessage) HistoryRecord {
	rec := HistoryRecord{Key: m.ID}

	people, okP := streamInt(m.Values["people"])
	ts, okT := streamInt(m.Values["timestamp"])
	if !okP || !okT {
		return rec
	}

	rec.Sample = occupancy.Sample{Count: int(people), Timestamp: time.Unix(ts, 0)}
	rec.Complete = true
	return rec
}

// streamInt parses a stream field, which Redis always returns as a string.
func streamInt(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent). Commands issued after
// Close fail with redis.ErrClosed.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := r.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
