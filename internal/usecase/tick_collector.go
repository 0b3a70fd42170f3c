package usecase

import (
	"PivotScan/internal/domain/models"
	drepo "PivotScan/internal/domain/repository"
	mid "PivotScan/internal/middleware"
	"context"
)

// TickCollector owns the feed stream: it connects, subscribes, and
// pumps incoming ticks through the pipeline (or straight to the
// processor when no pipeline is wired).
type TickCollector struct {
	stream  drepo.TickStream
	proc    *TickProcessor
	metrics drepo.Metrics
	pipe    *mid.TickPipeline
}

func NewTickCollector(stream drepo.TickStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.TickPipeline) *TickCollector {
	return &TickCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected reports the feed connection state, surfaced by the
// health endpoint.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				c.reconnect(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
			c.metrics.RecordLastPrice(t.Instrument, t.Price)
		}
	}
}

// reconnect retries until the stream is back or the context ends. A
// stale queued error for a connection that already recovered is a
// no-op.
func (c *TickCollector) reconnect(ctx context.Context) {
	for ctx.Err() == nil {
		if c.stream.IsConnected() {
			return
		}
		if err := c.stream.Reconnect(ctx); err == nil {
			return
		}
		c.metrics.RecordError("stream_reconnect")
	}
}

func (c *TickCollector) Stop() error { return c.stream.Close() }

// Processor exposes the tick processor so the app can flush it last.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown drains the pipeline and drops the feed connection.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
