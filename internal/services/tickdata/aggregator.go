// Package tickdata owns the fine-timeframe state: the per-instrument
// bucket cache built from raw ticks and the short-horizon tick tail the
// microstructure analyzer reads.
package tickdata

import (
    "fmt"
    "sort"
    "sync"
    "time"

    "PivotScan/internal/domain/models"
    "PivotScan/internal/services/indicators"
)

const (
    DefaultInterval   = 3 * time.Second
    DefaultMaxBuckets = 500
    DefaultMaxTicks   = 10000
)

// Aggregator groups raw ticks into fixed-interval buckets per
// instrument. Caches are bounded FIFO; re-ingesting an already-seen
// bucket timestamp replaces that bucket (last write wins). Safe for
// concurrent use.
type Aggregator struct {
    mu         sync.RWMutex
    interval   time.Duration
    maxBuckets int
    maxTicks   int

    buckets map[string][]*models.Bucket
    index   map[string]map[int64]*models.Bucket // bucket start unix -> bucket
    ticks   map[string][]models.Tick
}

func NewAggregator(interval time.Duration, maxBuckets, maxTicks int) (*Aggregator, error) {
    if interval <= 0 {
        return nil, fmt.Errorf("aggregation interval must be positive, got %v", interval)
    }
    if maxBuckets <= 0 || maxTicks <= 0 {
        return nil, fmt.Errorf("cache capacities must be positive, got buckets=%d ticks=%d", maxBuckets, maxTicks)
    }
    return &Aggregator{
        interval:   interval,
        maxBuckets: maxBuckets,
        maxTicks:   maxTicks,
        buckets:    make(map[string][]*models.Bucket),
        index:      make(map[string]map[int64]*models.Bucket),
        ticks:      make(map[string][]models.Tick),
    }, nil
}

// Ingest partitions ticks into buckets by flooring each timestamp to
// the aggregation interval and folds them into the per-instrument
// caches. Empty input is a no-op.
func (a *Aggregator) Ingest(ticks []models.Tick) {
    if len(ticks) == 0 {
        return
    }

    grouped := make(map[string]map[int64][]models.Tick)
    for _, t := range ticks {
        if t.Instrument == "" {
            continue
        }
        start := t.Timestamp.Truncate(a.interval).Unix()
        byStart, ok := grouped[t.Instrument]
        if !ok {
            byStart = make(map[int64][]models.Tick)
            grouped[t.Instrument] = byStart
        }
        byStart[start] = append(byStart[start], t)
    }

    a.mu.Lock()
    defer a.mu.Unlock()

    for instrument, byStart := range grouped {
        starts := make([]int64, 0, len(byStart))
        for s := range byStart {
            starts = append(starts, s)
        }
        sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
        for _, s := range starts {
            b := buildBucket(time.Unix(s, 0).UTC(), byStart[s])
            a.putBucket(instrument, b)
        }
    }

    for _, t := range ticks {
        if t.Instrument == "" {
            continue
        }
        tail := append(a.ticks[t.Instrument], t)
        if len(tail) > a.maxTicks {
            tail = tail[len(tail)-a.maxTicks:]
        }
        a.ticks[t.Instrument] = tail
    }
}

func (a *Aggregator) putBucket(instrument string, b *models.Bucket) {
    idx, ok := a.index[instrument]
    if !ok {
        idx = make(map[int64]*models.Bucket)
        a.index[instrument] = idx
    }
    start := b.Start.Unix()
    if existing, ok := idx[start]; ok {
        *existing = *b
        return
    }
    list := append(a.buckets[instrument], b)
    if len(list) > a.maxBuckets {
        evicted := list[0]
        delete(idx, evicted.Start.Unix())
        list = list[1:]
    }
    a.buckets[instrument] = list
    idx[start] = b
}

// Window returns up to the most recent length buckets as parallel
// columns. When no buckets exist every column is empty, never nil
// results or errors.
func (a *Aggregator) Window(instrument string, length int) models.BucketWindow {
    a.mu.RLock()
    defer a.mu.RUnlock()

    list := a.buckets[instrument]
    if length > 0 && len(list) > length {
        list = list[len(list)-length:]
    }
    w := models.BucketWindow{
        Times:      make([]time.Time, 0, len(list)),
        Open:       make([]float64, 0, len(list)),
        High:       make([]float64, 0, len(list)),
        Low:        make([]float64, 0, len(list)),
        Close:      make([]float64, 0, len(list)),
        Volume:     make([]float64, 0, len(list)),
        TickCounts: make([]int, 0, len(list)),
        AvgPrice:   make([]float64, 0, len(list)),
        PriceStdev: make([]float64, 0, len(list)),
        VWAP:       make([]float64, 0, len(list)),
    }
    for _, b := range list {
        w.Times = append(w.Times, b.Start)
        w.Open = append(w.Open, b.Open)
        w.High = append(w.High, b.High)
        w.Low = append(w.Low, b.Low)
        w.Close = append(w.Close, b.Close)
        w.Volume = append(w.Volume, b.Volume)
        w.TickCounts = append(w.TickCounts, b.TickCount)
        w.AvgPrice = append(w.AvgPrice, b.AvgPrice)
        w.PriceStdev = append(w.PriceStdev, b.PriceStdev)
        w.VWAP = append(w.VWAP, b.VWAP)
    }
    return w
}

// BucketCount returns how many buckets are cached for the instrument.
func (a *Aggregator) BucketCount(instrument string) int {
    a.mu.RLock()
    defer a.mu.RUnlock()
    return len(a.buckets[instrument])
}

// RecentTicks returns the cached raw ticks at or after since, oldest
// first.
func (a *Aggregator) RecentTicks(instrument string, since time.Time) []models.Tick {
    a.mu.RLock()
    defer a.mu.RUnlock()

    tail := a.ticks[instrument]
    out := make([]models.Tick, 0, len(tail))
    for _, t := range tail {
        if !t.Timestamp.Before(since) {
            out = append(out, t)
        }
    }
    return out
}

func buildBucket(start time.Time, ticks []models.Tick) *models.Bucket {
    b := &models.Bucket{
        Start:     start,
        Open:      ticks[0].Price,
        Close:     ticks[len(ticks)-1].Price,
        High:      ticks[0].Price,
        Low:       ticks[0].Price,
        TickCount: len(ticks),
    }
    prices := make([]float64, 0, len(ticks))
    var pv float64
    for _, t := range ticks {
        if t.Price > b.High {
            b.High = t.Price
        }
        if t.Price < b.Low {
            b.Low = t.Price
        }
        b.Volume += t.Volume
        pv += t.Price * t.Volume
        prices = append(prices, t.Price)
    }
    b.AvgPrice = indicators.Mean(prices)
    b.PriceStdev = indicators.PopulationStd(prices)
    if b.Volume > 0 {
        b.VWAP = pv / b.Volume
    } else {
        b.VWAP = b.Close
    }
    return b
}
