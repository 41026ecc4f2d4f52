package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/placementpay/internal/clock"
	"go.uber.org/zap"
)

// RedisCache shares entries across instances. Values are JSON encoded.
// A Redis failure degrades to a miss.
type RedisCache[V any] struct {
	client redis.UniversalClient
	prefix string
	log    *zap.Logger
}

func NewRedisCache[V any](client redis.UniversalClient, prefix string, log *zap.Logger) *RedisCache[V] {
	return &RedisCache[V]{client: client, prefix: prefix, log: log}
}

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", c.prefix+key), zap.Error(err))
		}
		return zero, false
	}
	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Warn("redis cache decode failed", zap.String("key", c.prefix+key), zap.Error(err))
		return zero, false
	}
	return value, true
}

func (c *RedisCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("redis cache encode failed", zap.String("key", c.prefix+key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", c.prefix+key), zap.Error(err))
	}
}

func (c *RedisCache[V]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.log.Warn("redis cache delete failed", zap.String("key", c.prefix+key), zap.Error(err))
	}
}

// NewStringCache backs a string keyed cache with Redis when a client is
// configured and with an in-process TTLCache otherwise.
func NewStringCache[V any](client redis.UniversalClient, prefix string, clk clock.Clock, log *zap.Logger) Cache[string, V] {
	if client == nil {
		return NewTTLCache[string, V](clk)
	}
	return NewRedisCache[V](client, prefix, log)
}
