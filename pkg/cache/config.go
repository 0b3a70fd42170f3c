package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures the redis cache tier.
type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	Prefix       string

	// Client, when set, is reused instead of dialing a new connection.
	// The cache then does not close it.
	Client *redis.Client
}

// WithRedisAddr sets the host:port to dial.
func WithRedisAddr(addr string) RedisOption {
	return func(rc *RedisConfig) { rc.Addr = addr }
}

// WithRedisAuth sets password and database number.
func WithRedisAuth(password string, db int) RedisOption {
	return func(rc *RedisConfig) {
		rc.Password = password
		rc.DB = db
	}
}

// WithRedisPool sets connection pool limits.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(rc *RedisConfig) {
		rc.PoolSize = size
		rc.MinIdleConns = minIdle
		rc.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets the key namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(rc *RedisConfig) { rc.Prefix = prefix }
}

// WithRedisClient reuses an existing client connection.
func WithRedisClient(client *redis.Client) RedisOption {
	return func(rc *RedisConfig) { rc.Client = client }
}

// MemoryOption configures the in-process cache tier.
type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxEntries      int
	CleanupInterval time.Duration
	DefaultTTL      time.Duration // applied when Set receives ttl <= 0
}

// WithMemoryMaxSize caps the number of entries before LRU eviction.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(mc *MemoryConfig) { mc.MaxEntries = n }
}

// WithMemoryCleanup sets the expired-entry sweep interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(mc *MemoryConfig) { mc.CleanupInterval = interval }
}

// WithMemoryDefaultTTL sets the lifetime used for Set calls without one.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(mc *MemoryConfig) { mc.DefaultTTL = ttl }
}

// LayeredOption configures the two-tier cache.
type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	MemoryMaxEntries int
	PromoteTTL       time.Duration // L1 lifetime for values promoted from L2
}

// WithLayeredMemorySize caps the L1 tier.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(lc *LayeredConfig) { lc.MemoryMaxEntries = n }
}

// WithLayeredPromoteTTL bounds how long an L2 hit stays in L1.
func WithLayeredPromoteTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredConfig) { lc.PromoteTTL = ttl }
}
