package usecase

import (
	"fmt"
	"time"

	"PivotScan/internal/domain/models"
	"PivotScan/internal/services/tickdata"
)

// BucketQueries serves the read-side bucket and microstructure lookups
// over the aggregator state. All reads are in-memory and cheap.
type BucketQueries struct {
	agg *tickdata.Aggregator
}

func NewBucketQueries(agg *tickdata.Aggregator) *BucketQueries {
	return &BucketQueries{agg: agg}
}

// Window returns up to the n most recent buckets for the instrument.
func (q *BucketQueries) Window(instrument string, n int) models.BucketWindow {
	return q.agg.Window(instrument, n)
}

// Microstructure computes the tick-tail metrics and composite score over
// the requested lookback.
func (q *BucketQueries) Microstructure(instrument string, lookback time.Duration, now time.Time) (models.MicrostructureSnapshot, error) {
	a, err := tickdata.NewAnalyzer(lookback)
	if err != nil {
		return models.MicrostructureSnapshot{}, fmt.Errorf("microstructure lookback: %w", err)
	}
	ticks := q.agg.RecentTicks(instrument, now.Add(-lookback))
	m := a.Metrics(ticks, now)
	return models.MicrostructureSnapshot{
		Instrument: instrument,
		Timestamp:  now,
		TickCount:  len(ticks),
		Metrics:    m,
		Score:      a.Score(m),
	}, nil
}
