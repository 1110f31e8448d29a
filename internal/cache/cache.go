// Package cache provides a small optional response cache backed by Redis.
// It exists for one named exception to the system's "no in-process cache
// outside the token map" rule: the duty scheduler's external
// availability-API lookups (see internal/duty), which would otherwise hit
// a third-party endpoint once per dashboard render. A nil *Cache (no
// REDIS_URL configured) is a valid, always-miss cache so callers never need
// a separate feature-flag check.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps a redis client with JSON get/set-with-TTL semantics. The zero
// value is not usable; construct via New.
type Cache struct {
	client *redis.Client
	log    zerolog.Logger
}

// New constructs a Cache over an already-configured redis client.
func New(client *redis.Client, log zerolog.Logger) *Cache {
	return &Cache{client: client, log: log.With().Str("component", "cache").Logger()}
}

// NewFromURL parses redisURL (as produced by REDIS_URL) and constructs a
// Cache, or returns nil, nil if redisURL is empty — the caller then has a
// nil *Cache, which Get/Set treat as an always-miss no-op.
func NewFromURL(redisURL string, log zerolog.Logger) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opts), log), nil
}

// Get decodes the cached value at key into dest, reporting ok=false on a
// cache miss, a disabled cache (c == nil), or a Redis error (logged and
// treated as a miss so a flaky cache never fails the caller's request).
func (c *Cache) Get(ctx context.Context, key string, dest any) (ok bool) {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value decode failed, treating as miss")
		return false
	}
	return true
}

// Set stores value at key with ttl. A nil Cache or a Redis failure is a
// silent no-op; this cache is a load-shedding optimization, never a
// correctness dependency.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value encode failed")
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}
