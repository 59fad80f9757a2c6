package dedupe

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache remembers recently recorded deliveries so redeliveries can be
// acknowledged without touching the database. It is a fast path only; the
// unique index on updates remains the source of truth.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: strings.TrimSpace(prefix),
		ttl:    ttl,
	}
}

// Seen reports whether key was remembered and has not expired.
func (c *RedisCache) Seen(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.buildKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember stores key for the configured TTL.
func (c *RedisCache) Remember(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.SetNX(ctx, c.buildKey(key), 1, c.ttl).Err()
}

func (c *RedisCache) buildKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}
