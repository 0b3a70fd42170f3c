package tickdata

import (
    "math"
    "testing"
    "time"

    "PivotScan/internal/domain/models"
)

var bucketBase = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func tick(instrument string, offset time.Duration, price, volume float64) models.Tick {
    return models.Tick{
        Instrument: instrument,
        Timestamp:  bucketBase.Add(offset),
        Price:      price,
        Volume:     volume,
    }
}

func mustAggregator(t *testing.T) *Aggregator {
    t.Helper()
    a, err := NewAggregator(DefaultInterval, DefaultMaxBuckets, DefaultMaxTicks)
    if err != nil {
        t.Fatalf("new aggregator: %v", err)
    }
    return a
}

func TestNewAggregatorRejectsBadParams(t *testing.T) {
    if _, err := NewAggregator(0, 10, 10); err == nil {
        t.Fatal("expected error for zero interval")
    }
    if _, err := NewAggregator(time.Second, 0, 10); err == nil {
        t.Fatal("expected error for zero bucket capacity")
    }
    if _, err := NewAggregator(time.Second, 10, -1); err == nil {
        t.Fatal("expected error for negative tick capacity")
    }
}

func TestBucketInvariants(t *testing.T) {
    a := mustAggregator(t)
    // Deliberately unordered prices inside one bucket.
    a.Ingest([]models.Tick{
        tick("BTCUSDT", 0, 10, 1),
        tick("BTCUSDT", time.Second, 15, 2),
        tick("BTCUSDT", 2*time.Second, 5, 1),
        tick("BTCUSDT", 2*time.Second, 12, 3),
    })
    w := a.Window("BTCUSDT", 10)
    if len(w.Close) != 1 {
        t.Fatalf("bucket count = %d, want 1", len(w.Close))
    }
    high, low := w.High[0], w.Low[0]
    for _, v := range []float64{w.Open[0], w.Close[0], low} {
        if high < v {
            t.Fatalf("high %v below %v", high, v)
        }
    }
    for _, v := range []float64{w.Open[0], w.Close[0], high} {
        if low > v {
            t.Fatalf("low %v above %v", low, v)
        }
    }
    if w.Open[0] != 10 || w.Close[0] != 12 || w.High[0] != 15 || w.Low[0] != 5 {
        t.Fatalf("ohlc = %v/%v/%v/%v", w.Open[0], w.High[0], w.Low[0], w.Close[0])
    }
    if w.Volume[0] != 7 || w.TickCounts[0] != 4 {
        t.Fatalf("volume=%v count=%d", w.Volume[0], w.TickCounts[0])
    }
}

func TestVWAPWeightsAndZeroVolumeFallback(t *testing.T) {
    a := mustAggregator(t)
    a.Ingest([]models.Tick{
        tick("AAA", 0, 100, 1),
        tick("AAA", time.Second, 200, 3),
    })
    w := a.Window("AAA", 1)
    want := (100*1 + 200*3) / 4.0
    if math.Abs(w.VWAP[0]-want) > 1e-9 {
        t.Fatalf("vwap = %v, want %v", w.VWAP[0], want)
    }

    a.Ingest([]models.Tick{
        tick("BBB", 0, 100, 0),
        tick("BBB", time.Second, 105, 0),
    })
    w = a.Window("BBB", 1)
    if w.VWAP[0] != 105 {
        t.Fatalf("zero-volume vwap = %v, want last price 105", w.VWAP[0])
    }
}

func TestTimestampFlooring(t *testing.T) {
    a := mustAggregator(t)
    a.Ingest([]models.Tick{
        tick("AAA", 0, 1, 1),
        tick("AAA", 2*time.Second, 2, 1),
        tick("AAA", 3*time.Second, 3, 1),
        tick("AAA", 5*time.Second, 4, 1),
        tick("AAA", 6*time.Second, 5, 1),
    })
    w := a.Window("AAA", 10)
    if len(w.Times) != 3 {
        t.Fatalf("bucket count = %d, want 3", len(w.Times))
    }
    wantStarts := []time.Time{bucketBase, bucketBase.Add(3 * time.Second), bucketBase.Add(6 * time.Second)}
    for i, want := range wantStarts {
        if !w.Times[i].Equal(want) {
            t.Fatalf("bucket[%d] start = %v, want %v", i, w.Times[i], want)
        }
    }
}

func TestReingestOverwritesBucket(t *testing.T) {
    a := mustAggregator(t)
    a.Ingest([]models.Tick{tick("AAA", 0, 10, 1)})
    a.Ingest([]models.Tick{
        tick("AAA", 0, 20, 2),
        tick("AAA", time.Second, 25, 2),
    })
    w := a.Window("AAA", 10)
    if len(w.Close) != 1 {
        t.Fatalf("bucket count = %d, want 1 after overwrite", len(w.Close))
    }
    if w.Open[0] != 20 || w.Close[0] != 25 || w.Volume[0] != 4 || w.TickCounts[0] != 2 {
        t.Fatalf("overwritten bucket = open %v close %v volume %v count %d",
            w.Open[0], w.Close[0], w.Volume[0], w.TickCounts[0])
    }
}

func TestBucketFIFOEviction(t *testing.T) {
    a, err := NewAggregator(DefaultInterval, 3, 100)
    if err != nil {
        t.Fatalf("new aggregator: %v", err)
    }
    for i := 0; i < 5; i++ {
        a.Ingest([]models.Tick{tick("AAA", time.Duration(i)*3*time.Second, float64(i), 1)})
    }
    w := a.Window("AAA", 10)
    if len(w.Times) != 3 {
        t.Fatalf("bucket count = %d, want capped 3", len(w.Times))
    }
    if !w.Times[0].Equal(bucketBase.Add(6 * time.Second)) {
        t.Fatalf("oldest kept bucket = %v, want the third ingested", w.Times[0])
    }
    // An evicted timestamp re-ingested later lands as a fresh bucket.
    a.Ingest([]models.Tick{tick("AAA", 0, 99, 1)})
    if got := a.BucketCount("AAA"); got != 3 {
        t.Fatalf("bucket count after re-adding evicted start = %d, want 3", got)
    }
}

func TestEmptyWindow(t *testing.T) {
    a := mustAggregator(t)
    w := a.Window("MISSING", 50)
    if w.Times == nil || w.Close == nil {
        t.Fatal("expected allocated empty columns")
    }
    if len(w.Times) != 0 || len(w.Close) != 0 || len(w.VWAP) != 0 {
        t.Fatalf("expected empty window, got %d buckets", len(w.Times))
    }
}

func TestRecentTicks(t *testing.T) {
    a := mustAggregator(t)
    a.Ingest([]models.Tick{
        tick("AAA", 0, 1, 1),
        tick("AAA", 10*time.Second, 2, 1),
        tick("AAA", 20*time.Second, 3, 1),
    })
    got := a.RecentTicks("AAA", bucketBase.Add(10*time.Second))
    if len(got) != 2 {
        t.Fatalf("recent ticks = %d, want 2", len(got))
    }
    if got[0].Price != 2 || got[1].Price != 3 {
        t.Fatalf("recent ticks = %v, want prices 2 then 3", got)
    }
}

func TestTickTailEviction(t *testing.T) {
    a, err := NewAggregator(DefaultInterval, 10, 5)
    if err != nil {
        t.Fatalf("new aggregator: %v", err)
    }
    var batch []models.Tick
    for i := 0; i < 8; i++ {
        batch = append(batch, tick("AAA", time.Duration(i)*time.Second, float64(i), 1))
    }
    a.Ingest(batch)
    got := a.RecentTicks("AAA", bucketBase)
    if len(got) != 5 {
        t.Fatalf("tail length = %d, want capped 5", len(got))
    }
    if got[0].Price != 3 {
        t.Fatalf("oldest kept tick price = %v, want 3", got[0].Price)
    }
}
