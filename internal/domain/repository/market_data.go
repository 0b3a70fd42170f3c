package repository

import (
	"context"
	"time"

	"PivotScan/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// BarField selects which OHLCV column a bar fetch returns.
type BarField string

const (
	FieldOpen   BarField = "open"
	FieldHigh   BarField = "high"
	FieldLow    BarField = "low"
	FieldClose  BarField = "close"
	FieldVolume BarField = "volume"
)

// MarketData is the engine's upstream data boundary: raw ticks for the
// fine path and bar columns for the coarse path. A failed or empty fetch
// is the caller's cue for the neutral result, never a reason to abort.
type MarketData interface {
	FetchTicks(ctx context.Context, instrument string, start, end time.Time) ([]models.Tick, error)
	FetchBars(ctx context.Context, instrument string, count int, tf Timeframe, field BarField) ([]float64, error)
}
