package cache

import (
	"context"
	"time"
)

// LayeredCache reads through an in-process L1 backed by redis L2.
// Writes go to both tiers; L2 hits are promoted into L1 with a short
// bounded lifetime so a stale L1 entry cannot outlive the data it
// shadows by much.
type LayeredCache struct {
	l1         *MemoryCache
	l2         *RedisCache
	promoteTTL time.Duration
}

func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxEntries: 1000,
		PromoteTTL:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		l1:         NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxEntries)),
		l2:         l2,
		promoteTTL: cfg.PromoteTTL,
	}
}

// Set writes through: L2 first so a crashed process never leaves L1
// ahead of the shared tier.
func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, ttl)
	return nil
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		return nil
	}

	if err := c.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, dest, c.promoteTTL)
	return nil
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	return c.l2.Delete(ctx, keys...)
}

// Exists consults L2 only; the shared tier is the source of truth.
func (c *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return c.l2.Exists(ctx, keys...)
}

func (c *LayeredCache) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}
