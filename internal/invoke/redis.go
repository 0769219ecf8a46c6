package invoke

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "toolcache:"

// RedisCache is a Redis-backed ResultCache, for deployments where multiple
// agent processes should share tool results. Redis errors degrade to cache
// misses; the engine never fails an invocation over its cache.
type RedisCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var _ ResultCache = (*RedisCache)(nil)

func NewRedisCache(addr, password string, db int, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: logger,
	}
}

// Ping verifies connectivity at startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Lookup(ctx context.Context, fingerprint string) (string, bool) {
	val, err := c.rdb.Get(ctx, redisKeyPrefix+fingerprint).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache lookup failed", "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Store(ctx context.Context, fingerprint, result string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+fingerprint, result, ttl).Err(); err != nil {
		c.logger.Warn("redis cache store failed", "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, fingerprint string) {
	if err := c.rdb.Del(ctx, redisKeyPrefix+fingerprint).Err(); err != nil {
		c.logger.Warn("redis cache invalidate failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
