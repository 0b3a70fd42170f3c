package detector

import (
    "fmt"
    "sync"
    "time"

    "PivotScan/internal/domain/models"
)

const (
    DefaultCooldown     = 15 * time.Second
    DefaultMaxPerMinute = 3
)

// RateLimiter suppresses repeated fine-timeframe fires: a per-kind
// cooldown since the last fire, and a per-instrument cap across kinds
// within one minute. The minute counters live in a two-slot ring keyed
// by minute label, so state stays bounded no matter how long the
// limiter runs. Safe for concurrent use.
type RateLimiter struct {
    mu           sync.Mutex
    cooldown     time.Duration
    maxPerMinute int
    states       map[string]*limiterState
}

type limiterState struct {
    lastFire map[models.SignalKind]time.Time
    ring     [2]minuteSlot
}

type minuteSlot struct {
    minute int64 // unix minute label, 0 = unused
    count  int
}

func NewRateLimiter(cooldown time.Duration, maxPerMinute int) (*RateLimiter, error) {
    if cooldown <= 0 {
        return nil, fmt.Errorf("cooldown must be positive, got %v", cooldown)
    }
    if maxPerMinute <= 0 {
        return nil, fmt.Errorf("per-minute cap must be positive, got %d", maxPerMinute)
    }
    return &RateLimiter{
        cooldown:     cooldown,
        maxPerMinute: maxPerMinute,
        states:       make(map[string]*limiterState),
    }, nil
}

// Filter applies the cooldown and the minute cap to one candidate.
// Checks run in that order and apply to every candidate; only a firing
// candidate that passes both records state. A non-firing candidate that
// passes keeps its strength for downstream blending.
func (l *RateLimiter) Filter(instrument string, kind models.SignalKind, signal bool, strength float64, now time.Time) (bool, float64) {
    l.mu.Lock()
    defer l.mu.Unlock()

    st, ok := l.states[instrument]
    if !ok {
        st = &limiterState{lastFire: make(map[models.SignalKind]time.Time)}
        l.states[instrument] = st
    }

    if last, ok := st.lastFire[kind]; ok && now.Sub(last) < l.cooldown {
        return false, 0
    }

    minute := now.Unix() / 60
    if st.minuteCount(minute) >= l.maxPerMinute {
        return false, 0
    }

    if signal {
        st.lastFire[kind] = now
        st.incrementMinute(minute)
    }
    return signal, strength
}

func (s *limiterState) minuteCount(minute int64) int {
    for _, slot := range s.ring {
        if slot.minute == minute {
            return slot.count
        }
    }
    return 0
}

// incrementMinute bumps the slot for minute, evicting the oldest slot
// when the ring has no room.
func (s *limiterState) incrementMinute(minute int64) {
    oldest := 0
    for i := range s.ring {
        if s.ring[i].minute == minute {
            s.ring[i].count++
            return
        }
        if s.ring[i].minute < s.ring[oldest].minute {
            oldest = i
        }
    }
    s.ring[oldest] = minuteSlot{minute: minute, count: 1}
}
