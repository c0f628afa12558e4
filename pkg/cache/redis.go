package cache

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/moa/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis, for sharing matcher and retriever
// results across worker processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps a Redis client. All keys are stored under the given
// prefix; a non-positive ttl disables expiry.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached value for key if present.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Warn("[Cache] Redis get failed", "error", err)
		return "", false
	}
	return value, true
}

// Set stores a value. Backend errors are logged and dropped.
func (c *RedisCache) Set(ctx context.Context, key string, value string) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		logger.Warn("[Cache] Redis set failed", "error", err)
	}
}
