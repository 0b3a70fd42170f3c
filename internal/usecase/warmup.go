package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "PivotScan/internal/domain/repository"
	"PivotScan/internal/services/tickdata"
	applogger "PivotScan/pkg/logger"
	"PivotScan/pkg/queue"
)

const (
	WarmupJobName     = "aggregator-warmup"
	WarmupMessageType = "warmup.instrument"

	DefaultWarmupWindow = 15 * time.Minute
)

// WarmupPayload names one instrument to backfill and how far back.
type WarmupPayload struct {
	Instrument string `json:"instrument"`
	WindowSec  int64  `json:"window_sec"`
}

// WarmupJob rebuilds one instrument's bucket cache from stored tick
// history, so the fine path is usable right after a restart instead of
// one full window later.
type WarmupJob struct {
	market domrepo.MarketData
	agg    *tickdata.Aggregator
	l      *applogger.Logger
}

func NewWarmupJob(market domrepo.MarketData, agg *tickdata.Aggregator) *WarmupJob {
	return &WarmupJob{market: market, agg: agg}
}

// SetLogger injects a structured logger.
func (j *WarmupJob) SetLogger(l *applogger.Logger) { j.l = l }

var _ queue.Job = (*WarmupJob)(nil)

func (j *WarmupJob) Name() string { return WarmupJobName }

func (j *WarmupJob) Type() string { return WarmupMessageType }

func (j *WarmupJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[WarmupPayload](payload)
	if err != nil {
		return fmt.Errorf("warmup payload: %w", err)
	}
	if p.Instrument == "" {
		return fmt.Errorf("warmup payload missing instrument")
	}
	window := time.Duration(p.WindowSec) * time.Second
	if window <= 0 {
		window = DefaultWarmupWindow
	}

	now := time.Now()
	ticks, err := j.market.FetchTicks(ctx, p.Instrument, now.Add(-window), now)
	if err != nil {
		return fmt.Errorf("warmup fetch %s: %w", p.Instrument, err)
	}
	j.agg.Ingest(ticks)

	if j.l != nil {
		j.l.Info("bucket cache warmed",
			applogger.String("instrument", p.Instrument),
			applogger.Int("ticks", len(ticks)),
			applogger.Int("buckets", j.agg.BucketCount(p.Instrument)),
			applogger.Duration("window", window))
	}
	return nil
}

// EnqueueWarmup submits one warmup message per instrument.
func EnqueueWarmup(ctx context.Context, q *queue.RedisQueue, instruments []string, window time.Duration) error {
	if window <= 0 {
		window = DefaultWarmupWindow
	}
	for _, instrument := range instruments {
		payload := WarmupPayload{Instrument: instrument, WindowSec: int64(window / time.Second)}
		if err := q.Enqueue(ctx, WarmupMessageType, payload); err != nil {
			return fmt.Errorf("enqueue warmup %s: %w", instrument, err)
		}
	}
	return nil
}
