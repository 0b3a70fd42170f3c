package usecase

import (
	"context"
	"fmt"
	"time"

	"PivotScan/internal/domain/models"
	drepo "PivotScan/internal/domain/repository"
)

// TickProcessor hands collected ticks to the Kafka tick topic. Persistence
// and aggregation happen on the consuming side, so a slow ClickHouse never
// stalls the feed.
type TickProcessor struct {
	pub     drepo.TickPublisher
	metrics drepo.Metrics
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(pub drepo.TickPublisher, metrics drepo.Metrics) *TickProcessor {
	return &TickProcessor{pub: pub, metrics: metrics}
}

// Process publishes a single tick.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	if err := p.pub.Publish(ctx, t); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process tick: %w", err)
	}

	p.metrics.RecordTickIngested("feed", t.Instrument)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch publishes multiple ticks in a batch.
func (p *TickProcessor) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.pub.PublishBatch(ctx, ticks); err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, t := range ticks {
		p.metrics.RecordTickIngested("feed", t.Instrument)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *TickProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
