// Package watermark keeps per-unit completion timestamps in Redis, for runs
// that share resume state across machines while each keeps its own store.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobsweep/internal/model"
)

const defaultPrefix = "jobsweep:watermark:"

// RedisStore implements model.WatermarkStore on a Redis hash per source.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps client. Keys are "<prefix><source>" hashes keyed by
// company. A positive ttl expires a source's hash after its last write.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(source string) string {
	return s.prefix + source
}

// Watermark returns the completion time of a unit, if one is recorded.
func (s *RedisStore) Watermark(ctx context.Context, source, company string) (time.Time, bool, error) {
	v, err := s.client.HGet(ctx, s.key(source), company).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis watermark %s: %w", model.UnitKey(source, company), err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis watermark %s: bad value %q: %w", model.UnitKey(source, company), v, err)
	}
	return t, true, nil
}

// SetWatermark records a unit's completion time.
func (s *RedisStore) SetWatermark(ctx context.Context, source, company string, at time.Time) error {
	key := s.key(source)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, company, at.UTC().Format(time.RFC3339Nano))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set watermark %s: %w", model.UnitKey(source, company), err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ model.WatermarkStore = (*RedisStore)(nil)
