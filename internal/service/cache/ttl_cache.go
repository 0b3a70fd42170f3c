package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	body    []byte
	expires time.Time
}

// TTLCache is the in-process fallback when Redis is disabled. Expired
// entries are dropped lazily on read.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry
}

var _ ResponseCache = (*TTLCache)(nil)

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry)}
}

func (c *TTLCache) Load(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, hit := c.entries[key]
	c.mu.RUnlock()
	if !hit {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.body, true, nil
}

func (c *TTLCache) Store(key string, body []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = ttlEntry{body: body, expires: expires}
	c.mu.Unlock()
	return nil
}
