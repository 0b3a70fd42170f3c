package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PivotScan/internal/domain/models"
)

type stubProc struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (s *stubProc) Process(_ context.Context, _ *models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("downstream unavailable")
	}
	return nil
}

func (s *stubProc) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{errors: make(map[string]int)}
}

func (m *stubMetrics) RecordTickIngested(string, string)    {}
func (m *stubMetrics) RecordSignalPublished(string, string) {}
func (m *stubMetrics) RecordLastPrice(string, float64)      {}
func (m *stubMetrics) RecordLatency(string, float64)        {}

func (m *stubMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *stubMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func validTick(instrument string, ts time.Time) *models.Tick {
	return &models.Tick{Instrument: instrument, Timestamp: ts, Price: 100, Volume: 1}
}

func TestPipelineForwardsValidTick(t *testing.T) {
	proc := &stubProc{}
	p := NewTickPipeline(proc, newStubMetrics())

	if err := p.Process(context.Background(), validTick("BTCUSDT", time.Now())); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if got := proc.callCount(); got != 1 {
		t.Fatalf("proc calls = %d, want 1", got)
	}
}

func TestPipelineRejectsMalformedTicks(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		tick *models.Tick
	}{
		{"nil", nil},
		{"empty instrument", &models.Tick{Timestamp: now, Price: 1, Volume: 1}},
		{"zero timestamp", &models.Tick{Instrument: "BTCUSDT", Price: 1, Volume: 1}},
		{"zero price", &models.Tick{Instrument: "BTCUSDT", Timestamp: now, Price: 0, Volume: 1}},
		{"negative price", &models.Tick{Instrument: "BTCUSDT", Timestamp: now, Price: -1, Volume: 1}},
		{"negative volume", &models.Tick{Instrument: "BTCUSDT", Timestamp: now, Price: 1, Volume: -1}},
	}

	for _, tc := range cases {
		proc := &stubProc{}
		metrics := newStubMetrics()
		p := NewTickPipeline(proc, metrics)

		if err := p.Process(context.Background(), tc.tick); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
		if got := proc.callCount(); got != 0 {
			t.Errorf("%s: proc calls = %d, want 0", tc.name, got)
		}
		if metrics.errorCount("pipeline_validate") != 1 {
			t.Errorf("%s: validation error not recorded", tc.name)
		}
	}
}

func TestPipelineThrottlesPerInstrument(t *testing.T) {
	proc := &stubProc{}
	metrics := newStubMetrics()
	p := NewTickPipeline(proc, metrics, WithMaxRPS(1))

	now := time.Now()
	if err := p.Process(context.Background(), validTick("BTCUSDT", now)); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	// second tick in the same instant is throttled, silently
	if err := p.Process(context.Background(), validTick("BTCUSDT", now)); err != nil {
		t.Fatalf("throttled tick should not error: %v", err)
	}
	if got := proc.callCount(); got != 1 {
		t.Fatalf("proc calls = %d, want 1", got)
	}
	if metrics.errorCount("pipeline_throttle") != 1 {
		t.Fatalf("throttle not recorded")
	}

	// a different instrument is not throttled
	if err := p.Process(context.Background(), validTick("ETHUSDT", now)); err != nil {
		t.Fatalf("other instrument: %v", err)
	}
	if got := proc.callCount(); got != 2 {
		t.Fatalf("proc calls = %d, want 2", got)
	}
}

func TestPipelineBuffersAndFlushesOnDownstreamError(t *testing.T) {
	proc := &stubProc{failures: 1}
	metrics := newStubMetrics()
	p := NewTickPipeline(proc, metrics, WithBufferSize(10))

	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, validTick("BTCUSDT", time.Now())); err == nil {
		t.Fatalf("expected downstream error")
	}

	// flush loop retries the buffered tick and succeeds on the second attempt
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if proc.callCount() >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := proc.callCount(); got < 2 {
		t.Fatalf("buffered tick never flushed, proc calls = %d", got)
	}
	if metrics.errorCount("pipeline_process") != 1 {
		t.Fatalf("downstream error not recorded")
	}
}

func TestPipelineTransformHook(t *testing.T) {
	proc := &stubProc{}
	p := NewTickPipeline(proc, newStubMetrics(), WithTransform(func(tk *models.Tick) *models.Tick {
		out := *tk
		out.Instrument = "X:" + tk.Instrument
		return &out
	}))

	if err := p.Process(context.Background(), validTick("BTCUSDT", time.Now())); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if got := proc.callCount(); got != 1 {
		t.Fatalf("proc calls = %d, want 1", got)
	}
}
