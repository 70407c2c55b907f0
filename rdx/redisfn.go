// Package rdx is a small JSON cache on top of Redis.
package rdx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"deepfakeapi/config"
)

// Cache stores JSON values with a fixed TTL. A nil *Cache is valid and
// never hits, so callers need no branch for a missing Redis.
type Cache struct {
	Conn   *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Connect pings the configured Redis and returns nil when no address is set.
func Connect(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	conn := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn, cfg.CacheTTL, logger), nil
}

func New(conn *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		Conn:   conn,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "redis_cache")),
	}
}

// GetJSON decodes the value at key into v and reports whether it was found.
// Redis errors count as misses.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	val, err := c.Conn.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(val, v); err != nil {
		c.logger.Warn("cached value is not valid json", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Conn.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) Del(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.Conn.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("redis del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.Conn.Close()
}
