package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs ResponseCache with Redis so cached responses are
// shared across replicas and survive restarts.
type RedisCache struct {
	rdb *redis.Client
}

var _ ResponseCache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client. The caller keeps ownership
// and closes it.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (r *RedisCache) Load(key string) ([]byte, bool, error) {
	body, err := r.rdb.Get(context.Background(), key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return body, true, nil
}

func (r *RedisCache) Store(key string, body []byte, ttl time.Duration) error {
	return r.rdb.Set(context.Background(), key, body, ttl).Err()
}
