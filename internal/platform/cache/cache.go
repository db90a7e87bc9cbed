// Package cache provides a small read-through cache for availability search
// results backed by redis. Invalidation is generation-based: every slot write
// bumps a generation counter, which makes all previously cached search
// results unreachable and leaves them to expire by TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const genKey = "agenda:availability:gen"

// Cache is safe to use as a nil pointer: every method degrades to a miss or
// a no-op, so callers never need to branch on whether redis is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redis at the given URL. An empty URL returns a nil cache,
// which disables caching without any caller-side checks.
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get loads a cached value into v. A miss, a stale generation, or any redis
// failure all report false; cache failures never fail a request.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, c.versionedKey(ctx, key)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// Set stores v under the current generation with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v interface{}) {
	if c == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.versionedKey(ctx, key), data, c.ttl)
}

// Invalidate bumps the generation counter, orphaning every cached entry.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	c.client.Incr(ctx, genKey)
}

func (c *Cache) versionedKey(ctx context.Context, key string) string {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil {
		gen = 0
	}
	return fmt.Sprintf("agenda:availability:%d:%s", gen, key)
}
