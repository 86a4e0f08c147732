package recorder

import (
	"context"
	"time"

	"github.com/streamvault/recordbot/pkg/redis"
)

// RedisProbeCache stores probe outcomes in Redis with a short TTL so that
// multiple bot instances (and restarts) share the same probe budget.
type RedisProbeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProbeCache creates a probe cache. ttl bounds how long a cached
// offline/unknown verdict suppresses re-probing.
func NewRedisProbeCache(client *redis.Client, ttl time.Duration) *RedisProbeCache {
	if ttl <= 0 {
		ttl = 45 * time.Second
	}
	return &RedisProbeCache{client: client, ttl: ttl}
}

func probeKey(model string) string { return "probe:" + model }

func (c *RedisProbeCache) Get(ctx context.Context, model string) (Status, bool) {
	val, err := c.client.Get(ctx, probeKey(model)).Result()
	if err != nil {
		// Misses and transport errors both fall through to a real probe.
		return StatusUnknown, false
	}
	switch val {
	case StatusOnline.String():
		return StatusOnline, true
	case StatusOffline.String():
		return StatusOffline, true
	case StatusUnknown.String():
		return StatusUnknown, true
	}
	return StatusUnknown, false
}

func (c *RedisProbeCache) Set(ctx context.Context, model string, status Status) error {
	return c.client.Set(ctx, probeKey(model), status.String(), c.ttl).Err()
}
