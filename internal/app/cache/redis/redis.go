// Package redis is the production cache.Cache implementation, backed by
// Redis so that execution snapshots and checkpoints survive an
// orchestrator process restart across a fleet rather than just a single
// process.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/shipforge/orchestrator/internal/app/cache"
)

// Cache adapts a *redis.Client to cache.Cache.
type Cache struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New wraps an already-configured redis client. defaultTTL is used for
// Put calls with ttl <= 0.
func New(client *goredis.Client, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{client: client, defaultTTL: defaultTTL}
}

func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
