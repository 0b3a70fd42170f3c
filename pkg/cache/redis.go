package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Service backed by redis. Every key is namespaced
// under a prefix so several services can share one database.
type RedisCache struct {
	rdb      *redis.Client
	prefix   string
	borrowed bool // client came from the caller; Close leaves it open
}

func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	conf := &RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 5,
		PoolTimeout:  30 * time.Second,
		Prefix:       "pivotscan",
	}
	for _, o := range opts {
		o(conf)
	}

	rdb, borrowed := conf.Client, true
	if rdb == nil {
		borrowed = false
		rdb = redis.NewClient(&redis.Options{
			Addr:         conf.Addr,
			Password:     conf.Password,
			DB:           conf.DB,
			PoolSize:     conf.PoolSize,
			MinIdleConns: conf.MinIdleConns,
			PoolTimeout:  conf.PoolTimeout,
		})
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		if !borrowed {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("cache redis ping: %w", err)
	}

	return &RedisCache{rdb: rdb, prefix: conf.Prefix, borrowed: borrowed}, nil
}

// Set stores the value under the namespaced key. Strings and byte
// slices go in as-is; anything else is JSON encoded.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := encodeCacheValue(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.namespaced(key), payload, ttl).Err()
}

// Get loads the key into dest. A *string dest receives the raw bytes;
// anything else is JSON decoded.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.rdb.Get(ctx, c.namespaced(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}

	if s, ok := dest.(*string); ok {
		*s = string(raw)
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// Delete removes the keys. Unlink reclaims the memory off the hot path.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Unlink(ctx, c.namespacedAll(keys)...).Err()
}

// Exists reports whether at least one of the keys is present.
func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.namespacedAll(keys)...).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the connection unless it was passed in from outside.
func (c *RedisCache) Close() error {
	if c.borrowed {
		return nil
	}
	return c.rdb.Close()
}

func (c *RedisCache) namespaced(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) namespacedAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.namespaced(k)
	}
	return out
}

func encodeCacheValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}
