package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
)

// Proc is the downstream stage the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// TickPipeline guards the tick processor: it rejects malformed ticks,
// caps the per-instrument rate, applies an optional transform, and
// parks ticks the processor could not take until a replay goroutine
// delivers them.
type TickPipeline struct {
	next    Proc
	metrics domrepo.Metrics

	maxRPS  int
	minGap  time.Duration
	bufSize int

	overflow chan *models.Tick
	quit     chan struct{}

	mu      sync.Mutex
	running bool

	lastAccept map[string]time.Time
	transform  func(*models.Tick) *models.Tick
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS caps how many ticks per second a single instrument may
// push downstream.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many ticks the pipeline parks while the
// processor is failing.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform installs a hook that rewrites each tick before it is
// admitted. The rewritten tick is validated again.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

func NewTickPipeline(next Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		next:       next,
		metrics:    metrics,
		maxRPS:     20,
		bufSize:    1000,
		quit:       make(chan struct{}),
		lastAccept: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(p)
	}
	p.overflow = make(chan *models.Tick, p.bufSize)
	if p.maxRPS > 0 {
		p.minGap = time.Second / time.Duration(p.maxRPS)
	}
	return p
}

// Start launches the goroutine that replays parked ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.drain(ctx)
}

// drain replays parked ticks, backing off while the processor keeps
// failing. A tick that fails again is requeued unless the buffer has
// filled behind it.
func (p *TickPipeline) drain(ctx context.Context) {
	const base = 50 * time.Millisecond
	pause := base
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.overflow:
			if t == nil {
				continue
			}
			if err := p.next.Process(ctx, t); err == nil {
				pause = base
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if pause < 2*time.Second {
				pause *= 2
			}
			time.Sleep(pause)
			select {
			case p.overflow <- t:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop halts the replay goroutine. Ticks still parked are lost.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.quit)
}

// Process validates and throttles one tick, then hands it to the
// processor. A tick the processor rejects is parked for replay; a full
// buffer drops it.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := checkTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := checkTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.admit(t.Instrument, start) {
		// Over budget for this instrument. Drop without error.
		p.metrics.RecordError("pipeline_throttle")
		p.metrics.RecordError("pipeline_throttle_" + t.Instrument)
		return nil
	}

	if err := p.next.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.overflow <- t:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.overflow)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("tick pipeline: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// admit applies the per-instrument rate cap. Only the collector
// goroutine calls Process, so lastAccept needs no lock.
func (p *TickPipeline) admit(instrument string, now time.Time) bool {
	if p.minGap <= 0 {
		return true
	}
	last, seen := p.lastAccept[instrument]
	if seen && now.Sub(last) < p.minGap {
		return false
	}
	p.lastAccept[instrument] = now
	return true
}

func checkTick(t *models.Tick) error {
	switch {
	case t == nil:
		return fmt.Errorf("nil tick")
	case t.Instrument == "":
		return fmt.Errorf("tick without instrument")
	case t.Timestamp.IsZero():
		return fmt.Errorf("tick without timestamp")
	case t.Price <= 0:
		return fmt.Errorf("tick price %v out of range", t.Price)
	case t.Volume < 0:
		return fmt.Errorf("tick volume %v negative", t.Volume)
	}
	return nil
}
