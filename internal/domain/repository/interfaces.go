package repository

import (
	"context"
	"time"

	"PivotScan/internal/domain/models"
)

// TickStream is a live trade feed. Read's channels stay open across
// reconnects; only context cancellation ends them.
type TickStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickPublisher hands accepted ticks to the message bus.
type TickPublisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

// TickStorage persists raw ticks and serves range queries over them.
type TickStorage interface {
	Init(ctx context.Context) error // creates the schema when missing
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalSink receives every fused evaluation outcome that fired.
type SignalSink interface {
	Publish(ctx context.Context, s *models.FusedSignal) error
	Close() error
}

// Metrics is the engine's counter and latency surface. Implementations
// must be safe for concurrent use.
type Metrics interface {
	RecordTickIngested(source, instrument string)
	RecordSignalPublished(instrument, kind string)
	RecordError(kind string)
	RecordLastPrice(instrument string, price float64)
	RecordLatency(op string, seconds float64)
}
