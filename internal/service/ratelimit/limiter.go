package ratelimit

import (
    "sync"
    "time"
)

const (
    sweepEvery = 4096
    staleAfter = 10 * time.Minute
)

type bucket struct {
    tokens float64
    last   time.Time
}

// Limiter is a token-bucket rate limiter keyed by caller identity.
// Buckets idle past staleAfter are swept periodically so per-IP keys
// cannot grow without bound.
type Limiter struct {
    mu    sync.Mutex
    m     map[string]*bucket
    calls int
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket)} }

// Allow consumes one token for key, refilled at refillPerSec up to
// capacity. The first call for a key starts with a full bucket.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
    now := time.Now()

    l.mu.Lock()
    defer l.mu.Unlock()

    l.calls++
    if l.calls%sweepEvery == 0 {
        l.sweep(now)
    }

    b, ok := l.m[key]
    if !ok {
        b = &bucket{tokens: capacity, last: now}
        l.m[key] = b
    }
    if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
        b.tokens += elapsed * refillPerSec
        if b.tokens > capacity {
            b.tokens = capacity
        }
        b.last = now
    }

    if b.tokens < 1 {
        return false
    }
    b.tokens--
    return true
}

func (l *Limiter) sweep(now time.Time) {
    for k, b := range l.m {
        if now.Sub(b.last) > staleAfter {
            delete(l.m, k)
        }
    }
}
