package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	"PivotScan/internal/services/fusion"
	"PivotScan/internal/services/tickdata"
)

type fakeMarket struct {
	mu        sync.Mutex
	bars      map[string][]float64
	ticks     []models.Tick
	err       error
	calls     int
	lastTF    domrepo.Timeframe
	lastStart time.Time
	lastEnd   time.Time
}

func (f *fakeMarket) FetchTicks(ctx context.Context, instrument string, start, end time.Time) ([]models.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStart, f.lastEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	return f.ticks, nil
}

func (f *fakeMarket) FetchBars(ctx context.Context, instrument string, count int, tf domrepo.Timeframe, field domrepo.BarField) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTF = tf
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[instrument], nil
}

func (f *fakeMarket) setBars(instrument string, bars []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars[instrument] = bars
}

func (f *fakeMarket) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type captureSink struct {
	mu        sync.Mutex
	published []models.FusedSignal
	err       error
}

func (s *captureSink) Publish(ctx context.Context, sig *models.FusedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, *sig)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

type stubDetector struct {
	res    models.TimeframeResult
	panics bool
	lastIn *models.DetectionInput
}

func (d *stubDetector) Detect(in models.DetectionInput) models.TimeframeResult {
	d.lastIn = &in
	if d.panics {
		panic("detector exploded")
	}
	return d.res
}

type evalMetrics struct {
	mu      sync.Mutex
	errors  map[string]int
	signals map[string]int
}

func newEvalMetrics() *evalMetrics {
	return &evalMetrics{errors: make(map[string]int), signals: make(map[string]int)}
}

func (m *evalMetrics) RecordTickIngested(source, instrument string) {}
func (m *evalMetrics) RecordSignalPublished(instrument, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[instrument+"/"+kind]++
}
func (m *evalMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *evalMetrics) RecordLastPrice(instrument string, price float64) {}
func (m *evalMetrics) RecordLatency(op string, seconds float64)         {}

func risingBars(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)*0.1
	}
	return out
}

func newTestFuser(t *testing.T) *fusion.Fuser {
	t.Helper()
	f, err := fusion.New(fusion.DefaultConfig())
	if err != nil {
		t.Fatalf("fuser: %v", err)
	}
	return f
}

// seedBuckets ingests one tick per aggregation interval so the cache
// holds exactly n buckets ending near now.
func seedBuckets(t *testing.T, agg *tickdata.Aggregator, instrument string, n int, now time.Time) {
	t.Helper()
	ticks := make([]models.Tick, 0, n)
	start := now.Add(-time.Duration(n) * 3 * time.Second)
	for i := 0; i < n; i++ {
		ticks = append(ticks, models.Tick{
			Instrument: instrument,
			Timestamp:  start.Add(time.Duration(i) * 3 * time.Second),
			Price:      200 + float64(i)*0.05,
			Volume:     10,
		})
	}
	agg.Ingest(ticks)
	if got := agg.BucketCount(instrument); got < n {
		t.Fatalf("seeded %d buckets, want at least %d", got, n)
	}
}

func TestEvaluatorCoarseOnlyWhenBucketsShort(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	agg, err := tickdata.NewAggregator(3*time.Second, 500, 10000)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	coarse := &stubDetector{res: models.TimeframeResult{
		Peak:         models.Detection{Signal: true, Strength: 0.9},
		CurrentPrice: 104.9,
	}}
	fine := &stubDetector{}
	sink := &captureSink{}

	e := NewEvaluator(market, agg, nil, coarse, fine, newTestFuser(t), sink, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())

	sig := e.Latest("AAPL")
	if sig == nil {
		t.Fatal("expected a latest signal")
	}
	if sig.Fused {
		t.Error("expected coarse-only signal with an empty bucket cache")
	}
	if sig.Confidence != "" {
		t.Errorf("coarse-only confidence = %q, want empty", sig.Confidence)
	}
	if !sig.Peak.Signal || sig.Peak.Strength != 0.9 {
		t.Errorf("peak = %+v, want coarse detection unchanged", sig.Peak)
	}
	if fine.lastIn != nil {
		t.Error("fine detector must not run without enough buckets")
	}
	if sink.count() != 1 {
		t.Fatalf("published %d signals, want 1", sink.count())
	}
}

func TestEvaluatorFusesWhenBucketsReady(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	agg, err := tickdata.NewAggregator(3*time.Second, 500, 10000)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	seedBuckets(t, agg, "AAPL", 80, time.Now())

	coarse := &stubDetector{res: models.TimeframeResult{
		Peak: models.Detection{Signal: true, Strength: 0.8},
	}}
	fine := &stubDetector{res: models.TimeframeResult{
		Peak: models.Detection{Signal: true, Strength: 0.7},
	}}
	sink := &captureSink{}

	e := NewEvaluator(market, agg, nil, coarse, fine, newTestFuser(t), sink, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())

	sig := e.Latest("AAPL")
	if sig == nil {
		t.Fatal("expected a latest signal")
	}
	if !sig.Fused {
		t.Fatal("expected a fused signal with a warm bucket cache")
	}
	want := 0.8*0.7 + 0.7*0.3
	if diff := sig.Peak.Strength - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fused peak strength = %v, want %v", sig.Peak.Strength, want)
	}
	if !sig.Peak.Signal {
		t.Error("coarse fired and blend cleared the threshold, peak must confirm")
	}
	if sig.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high when both directions agree", sig.Confidence)
	}

	in := fine.lastIn
	if in == nil {
		t.Fatal("fine detector did not run")
	}
	if len(in.Prices) != 80 {
		t.Errorf("fine input has %d closes, want 80", len(in.Prices))
	}
	if in.CurrentPrice != in.Prices[len(in.Prices)-1] {
		t.Errorf("fine current price = %v, want newest bucket close %v", in.CurrentPrice, in.Prices[len(in.Prices)-1])
	}
	if len(in.VWAP) != len(in.Prices) || len(in.Highs) != len(in.Prices) {
		t.Error("fine input columns must align with closes")
	}
}

func TestEvaluatorSkipKeepsPreviousSignal(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	coarse := &stubDetector{res: models.TimeframeResult{
		Peak: models.Detection{Signal: true, Strength: 0.9},
	}}
	sink := &captureSink{}

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), sink, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())

	first := e.Latest("AAPL")
	if first == nil {
		t.Fatal("expected a signal after the first cycle")
	}

	market.setBars("AAPL", risingBars(10))
	e.EvaluateAll(context.Background())

	second := e.Latest("AAPL")
	if second == nil || !second.Timestamp.Equal(first.Timestamp) {
		t.Error("a skipped cycle must keep the previous signal")
	}
	if sink.count() != 1 {
		t.Errorf("published %d signals, want 1 (no re-publish on skip)", sink.count())
	}
}

func TestEvaluatorFetchErrorRecorded(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	coarse := &stubDetector{}
	metrics := newEvalMetrics()

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), &captureSink{}, metrics, []string{"AAPL"})
	market.setErr(fmt.Errorf("clickhouse down"))
	e.EvaluateAll(context.Background())

	if e.Latest("AAPL") != nil {
		t.Error("a failed fetch must not produce a signal")
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.errors["evaluate_fetch"] != 1 {
		t.Errorf("evaluate_fetch errors = %d, want 1", metrics.errors["evaluate_fetch"])
	}
}

func TestEvaluatorQuietCycleDoesNotPublish(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	coarse := &stubDetector{res: models.TimeframeResult{RSI: 50}}
	sink := &captureSink{}

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), sink, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())

	if e.Latest("AAPL") == nil {
		t.Fatal("a quiet cycle still records the latest signal")
	}
	if sink.count() != 0 {
		t.Errorf("published %d signals, want 0 when nothing fired", sink.count())
	}
}

func TestEvaluatorFinePanicFallsBackToCoarse(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	agg, err := tickdata.NewAggregator(3*time.Second, 500, 10000)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	seedBuckets(t, agg, "AAPL", 80, time.Now())

	coarse := &stubDetector{res: models.TimeframeResult{
		Valley: models.Detection{Signal: true, Strength: 0.85},
	}}
	fine := &stubDetector{panics: true}

	e := NewEvaluator(market, agg, nil, coarse, fine, newTestFuser(t), &captureSink{}, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())

	sig := e.Latest("AAPL")
	if sig == nil {
		t.Fatal("a fine-path failure must still yield the coarse signal")
	}
	if sig.Fused {
		t.Error("expected coarse-only fallback after a fine-path panic")
	}
	if !sig.Valley.Signal || sig.Valley.Strength != 0.85 {
		t.Errorf("valley = %+v, want coarse detection unchanged", sig.Valley)
	}
}

func TestEvaluatorPublishErrorRecorded(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	coarse := &stubDetector{res: models.TimeframeResult{
		Peak: models.Detection{Signal: true, Strength: 0.9},
	}}
	sink := &captureSink{err: fmt.Errorf("kafka down")}
	metrics := newEvalMetrics()

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), sink, metrics, []string{"AAPL"})
	e.EvaluateAll(context.Background())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.errors["signal_publish"] != 1 {
		t.Errorf("signal_publish errors = %d, want 1", metrics.errors["signal_publish"])
	}
	if len(metrics.signals) != 0 {
		t.Errorf("recorded %d published signals, want 0 on publish failure", len(metrics.signals))
	}
}

func TestEvaluatorCoarseTimeframe(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{"AAPL": risingBars(50)}}
	coarse := &stubDetector{res: models.TimeframeResult{RSI: 50}}

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), &captureSink{}, newEvalMetrics(), []string{"AAPL"})
	e.EvaluateAll(context.Background())
	if market.lastTF != domrepo.TF1m {
		t.Errorf("default coarse fetch used %q, want %q", market.lastTF, domrepo.TF1m)
	}

	e = NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), &captureSink{}, newEvalMetrics(), []string{"AAPL"},
		WithCoarseTimeframe(domrepo.TF5m))
	e.EvaluateAll(context.Background())
	if market.lastTF != domrepo.TF5m {
		t.Errorf("coarse fetch used %q, want %q", market.lastTF, domrepo.TF5m)
	}

	e = NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), &captureSink{}, newEvalMetrics(), []string{"AAPL"},
		WithCoarseTimeframe(domrepo.Timeframe("2h")))
	e.EvaluateAll(context.Background())
	if market.lastTF != domrepo.TF1m {
		t.Errorf("unsupported timeframe fetched with %q, want default %q", market.lastTF, domrepo.TF1m)
	}
}

func TestEvaluatorLatestAllFollowsInstrumentOrder(t *testing.T) {
	market := &fakeMarket{bars: map[string][]float64{
		"AAPL": risingBars(50),
		"MSFT": risingBars(50),
	}}
	coarse := &stubDetector{res: models.TimeframeResult{RSI: 50}}

	e := NewEvaluator(market, nil, nil, coarse, nil, newTestFuser(t), &captureSink{}, newEvalMetrics(), []string{"MSFT", "AAPL"})
	e.EvaluateAll(context.Background())

	all := e.LatestAll()
	if len(all) != 2 {
		t.Fatalf("LatestAll returned %d signals, want 2", len(all))
	}
	if all[0].Instrument != "MSFT" || all[1].Instrument != "AAPL" {
		t.Errorf("LatestAll order = [%s %s], want configured order", all[0].Instrument, all[1].Instrument)
	}
}
