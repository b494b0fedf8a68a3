package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a fixed-window Counter backed by Redis, shared across
// service instances. Each key lives in its own bucket with a TTL equal to
// the window; INCR on a fresh bucket starts the window.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "invites:count:"}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	rkey := c.prefix + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, rkey)
	ttl := pipe.TTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()
	if remaining < 0 {
		// first hit in this window, or a bucket left without expiry
		if err := c.client.Expire(ctx, rkey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis expire: %w", err)
		}
		remaining = window
	}
	return count, time.Now().Add(remaining), nil
}

func (c *RedisCounter) Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	rkey := c.prefix + key

	pipe := c.client.Pipeline()
	get := pipe.Get(ctx, rkey)
	ttl := pipe.TTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	count, err := get.Int64()
	if err == redis.Nil {
		return 0, time.Now().Add(window), nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis parse count: %w", err)
	}
	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return count, time.Now().Add(remaining), nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
