package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value    interface{}
	expireAt time.Time
	lastUsed time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expireAt)
}

// MemoryCache is an in-process Service with LRU eviction at capacity
// and a background sweep for expired entries.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	max     int
	ttl     time.Duration
	sweep   *time.Ticker
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      24 * time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		max:     cfg.MaxEntries,
		ttl:     cfg.DefaultTTL,
		sweep:   time.NewTicker(cfg.CleanupInterval),
	}
	go c.sweepExpired()
	return c
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.max {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = &memoryEntry{
		value:    value,
		expireAt: now.Add(ttl),
		lastUsed: now,
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	now := time.Now()
	if !ok || e.expired(now) {
		if ok {
			delete(c.entries, key)
		}
		return ErrCacheMiss
	}
	e.lastUsed = now

	switch d := dest.(type) {
	case *string:
		if s, ok := e.value.(string); ok {
			*d = s
			return nil
		}
	case *interface{}:
		*d = e.value
		return nil
	}

	// Typed destinations take a JSON round-trip, the same shape the
	// redis tier stores.
	b, err := json.Marshal(e.value)
	if err != nil {
		return fmt.Errorf("marshal cached value: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("unmarshal cached value: %w", err)
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, key := range keys {
		if e, ok := c.entries[key]; ok && !e.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// Close stops the background sweep.
func (c *MemoryCache) Close() error {
	if c.sweep != nil {
		c.sweep.Stop()
	}
	return nil
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time

	for key, e := range c.entries {
		if oldestKey == "" || e.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = e.lastUsed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryCache) sweepExpired() {
	for range c.sweep.C {
		now := time.Now()
		c.mu.Lock()
		for key, e := range c.entries {
			if e.expired(now) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}
