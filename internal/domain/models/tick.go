package models

import "time"

// Tick is a single executed trade event.
type Tick struct {
	Instrument string
	Timestamp  time.Time
	Price      float64
	Volume     float64
}

// Bucket is one fixed-interval OHLCV+VWAP aggregate of ticks.
// Invariants: High >= {Open, Close, Low}; Low <= {Open, Close, High};
// Volume >= 0; TickCount >= 1.
type Bucket struct {
	Start      time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TickCount  int
	AvgPrice   float64
	PriceStdev float64
	VWAP       float64
}

// BucketWindow is a column-oriented view over the most recent buckets of
// one instrument. All slices share the same length; an empty window has
// zero-length slices, not nils-with-meaning.
type BucketWindow struct {
	Times      []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
	TickCounts []int
	AvgPrice   []float64
	PriceStdev []float64
	VWAP       []float64
}
