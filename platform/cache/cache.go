// Package cache provides a small redis-backed cache for read-heavy
// reporting aggregates. This is part of the platform layer and contains no
// business logic.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"advisory_portal_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent from the cache.
var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache from the redis configuration. Returns nil when redis
// is not configured; callers treat a nil cache as always-miss.
func New(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.IsRedisEnabled() {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	return &Cache{client: redis.NewClient(opt), ttl: cfg.GetReportCacheTTL()}, nil
}

// NewWithClient wraps an existing redis client; used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get unmarshals the cached value for key into dest. Returns ErrMiss when
// the key is absent or the cache is not configured.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if c == nil {
		return ErrMiss
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, dest)
}

// Set stores value under key for the configured TTL. A nil cache is a no-op.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate removes keys from the cache. A nil cache is a no-op.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
