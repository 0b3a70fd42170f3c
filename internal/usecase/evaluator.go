package usecase

import (
	"context"
	"sync"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	domsvc "PivotScan/internal/domain/service"
	svcmetrics "PivotScan/internal/service/metrics"
	"PivotScan/internal/services/tickdata"
	applogger "PivotScan/pkg/logger"
)

// Evaluation cadence and window defaults. Zero-valued options fall back
// to these. FineFetch is how many buckets each cycle reads; the fine
// detector's own window decides how many it needs.
const (
	DefaultEvalInterval   = time.Minute
	DefaultBarHistory     = 50
	DefaultMinBarHistory  = 30
	DefaultFineFetch      = 100
	DefaultMinFineBuckets = 60
)

// Cycle outcomes as recorded in the engine metrics.
const (
	outcomeFused      = "fused"
	outcomeCoarseOnly = "coarse_only"
	outcomeSkipped    = "skipped"
	outcomeError      = "error"
)

// Evaluator drives one detection cycle per instrument on a fixed
// interval: bar closes at the coarse resolution (minute bars unless
// configured otherwise) feed the coarse detector, the bucket window
// plus the microstructure score feed the fine detector, and the fuser
// blends both. When the bucket cache is still shorter than the fine
// gate the coarse result ships alone, unfused. A skipped instrument
// (too little bar history) keeps its previous signal.
type Evaluator struct {
	market  domrepo.MarketData
	agg     *tickdata.Aggregator
	micro   domsvc.MicrostructureAnalyzer
	coarse  domsvc.TurningPointDetector
	fine    domsvc.TurningPointDetector
	fuser   domsvc.SignalFuser
	sink    domrepo.SignalSink
	metrics domrepo.Metrics
	l       *applogger.Logger

	instruments    []string
	interval       time.Duration
	coarseTF       domrepo.Timeframe
	barHistory     int
	minBarHistory  int
	fineWindow     int
	minFineBuckets int
	microLookback  time.Duration

	mu     sync.RWMutex
	latest map[string]*models.FusedSignal
}

type EvaluatorOption func(*Evaluator)

func WithEvalInterval(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithCoarseTimeframe sets the bar resolution the coarse path fetches
// and evaluates on. Unsupported values keep the default.
func WithCoarseTimeframe(tf domrepo.Timeframe) EvaluatorOption {
	return func(e *Evaluator) {
		if domrepo.IsValidTimeframe(tf) {
			e.coarseTF = tf
		}
	}
}

// WithBarHistory sets how many coarse bars each cycle fetches and the
// minimum below which the instrument is skipped.
func WithBarHistory(count, min int) EvaluatorOption {
	return func(e *Evaluator) {
		if count > 0 {
			e.barHistory = count
		}
		if min > 0 {
			e.minBarHistory = min
		}
	}
}

// WithFineWindow sets how many buckets the fine path reads and the
// bucket count below which the cycle stays coarse-only.
func WithFineWindow(window, min int) EvaluatorOption {
	return func(e *Evaluator) {
		if window > 0 {
			e.fineWindow = window
		}
		if min > 0 {
			e.minFineBuckets = min
		}
	}
}

func WithMicroLookback(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.microLookback = d
		}
	}
}

func WithEvaluatorLogger(l *applogger.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.l = l }
}

func NewEvaluator(
	market domrepo.MarketData,
	agg *tickdata.Aggregator,
	micro domsvc.MicrostructureAnalyzer,
	coarse domsvc.TurningPointDetector,
	fine domsvc.TurningPointDetector,
	fuser domsvc.SignalFuser,
	sink domrepo.SignalSink,
	metrics domrepo.Metrics,
	instruments []string,
	opts ...EvaluatorOption,
) *Evaluator {
	e := &Evaluator{
		market:         market,
		agg:            agg,
		micro:          micro,
		coarse:         coarse,
		fine:           fine,
		fuser:          fuser,
		sink:           sink,
		metrics:        metrics,
		instruments:    instruments,
		interval:       DefaultEvalInterval,
		coarseTF:       domrepo.DefaultTimeframe(),
		barHistory:     DefaultBarHistory,
		minBarHistory:  DefaultMinBarHistory,
		fineWindow:     DefaultFineFetch,
		minFineBuckets: DefaultMinFineBuckets,
		microLookback:  tickdata.DefaultMicroLookback,
		latest:         make(map[string]*models.FusedSignal),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates all instruments once per interval until the context is
// cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	if e.l != nil {
		e.l.Info("evaluator started",
			applogger.Strings("instruments", e.instruments),
			applogger.Duration("interval", e.interval))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}

// EvaluateAll runs one cycle over every instrument sequentially.
func (e *Evaluator) EvaluateAll(ctx context.Context) {
	now := time.Now()
	for _, instrument := range e.instruments {
		start := time.Now()
		outcome := e.evaluateOne(ctx, instrument, now)
		svcmetrics.EvalLatency.WithLabelValues(instrument).Observe(time.Since(start).Seconds())
		svcmetrics.EvalOutcomes.WithLabelValues(instrument, outcome).Inc()
	}
}

// evaluateOne runs the full cycle for a single instrument. A panic in
// any detector is contained here so one bad series cannot take down the
// loop.
func (e *Evaluator) evaluateOne(ctx context.Context, instrument string, now time.Time) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeError
			if e.metrics != nil {
				e.metrics.RecordError("evaluate_panic")
			}
			if e.l != nil {
				e.l.Error("evaluation panic",
					applogger.String("instrument", instrument),
					applogger.Any("panic", r))
			}
		}
	}()

	closes, err := e.market.FetchBars(ctx, instrument, e.barHistory, e.coarseTF, domrepo.FieldClose)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordError("evaluate_fetch")
		}
		if e.l != nil {
			e.l.Error("bar fetch failed",
				applogger.String("instrument", instrument),
				applogger.Error(err))
		}
		return outcomeError
	}
	if len(closes) < e.minBarHistory {
		// Keep the previous signal; a thin history is not a reset.
		return outcomeSkipped
	}

	coarseRes := e.coarse.Detect(models.DetectionInput{
		Instrument:   instrument,
		Prices:       closes,
		CurrentPrice: closes[len(closes)-1],
		Now:          now,
	})

	var sig models.FusedSignal
	if fineRes, ok := e.fineResult(instrument, now); ok {
		sig = e.fuser.Fuse(instrument, coarseRes, fineRes, now)
		outcome = outcomeFused
	} else {
		sig = models.FusedSignal{
			Instrument: instrument,
			Timestamp:  now,
			Peak:       coarseRes.Peak,
			Valley:     coarseRes.Valley,
			Coarse:     coarseRes,
		}
		outcome = outcomeCoarseOnly
	}

	e.mu.Lock()
	e.latest[instrument] = &sig
	e.mu.Unlock()

	e.publish(ctx, &sig)
	return outcome
}

// fineResult builds the fine detection from the bucket window when
// enough buckets exist. The current price is the newest bucket close,
// not the minute close. A failure on this path downgrades the cycle to
// coarse-only instead of erroring it.
func (e *Evaluator) fineResult(instrument string, now time.Time) (res models.TimeframeResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if e.l != nil {
				e.l.Warn("fine path failed, staying coarse-only",
					applogger.String("instrument", instrument),
					applogger.Any("panic", r))
			}
		}
	}()
	if e.agg == nil || e.fine == nil {
		return models.TimeframeResult{}, false
	}
	if e.agg.BucketCount(instrument) < e.minFineBuckets {
		return models.TimeframeResult{}, false
	}
	w := e.agg.Window(instrument, e.fineWindow)
	if len(w.Close) < e.minFineBuckets {
		return models.TimeframeResult{}, false
	}

	var score float64
	if e.micro != nil {
		ticks := e.agg.RecentTicks(instrument, now.Add(-e.microLookback))
		score = e.micro.Score(e.micro.Metrics(ticks, now))
	}

	res = e.fine.Detect(models.DetectionInput{
		Instrument:   instrument,
		Prices:       w.Close,
		Volumes:      w.Volume,
		Highs:        w.High,
		Lows:         w.Low,
		VWAP:         w.VWAP,
		CurrentPrice: w.Close[len(w.Close)-1],
		MicroScore:   score,
		Now:          now,
	})
	return res, true
}

// publish ships a signal whose peak or valley fired and records it.
func (e *Evaluator) publish(ctx context.Context, sig *models.FusedSignal) {
	if !sig.Peak.Signal && !sig.Valley.Signal {
		return
	}
	if e.l != nil {
		e.l.Info("signal confirmed",
			applogger.String("instrument", sig.Instrument),
			applogger.Bool("peak", sig.Peak.Signal),
			applogger.Bool("valley", sig.Valley.Signal),
			applogger.String("confidence", string(sig.Confidence)),
			applogger.Bool("fused", sig.Fused))
	}
	if sig.Peak.Signal {
		svcmetrics.SignalsConfirmed.WithLabelValues(sig.Instrument, string(models.KindPeak)).Inc()
	}
	if sig.Valley.Signal {
		svcmetrics.SignalsConfirmed.WithLabelValues(sig.Instrument, string(models.KindValley)).Inc()
	}
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, sig); err != nil {
		if e.metrics != nil {
			e.metrics.RecordError("signal_publish")
		}
		if e.l != nil {
			e.l.Error("signal publish failed",
				applogger.String("instrument", sig.Instrument),
				applogger.Error(err))
		}
		return
	}
	if e.metrics != nil {
		if sig.Peak.Signal {
			e.metrics.RecordSignalPublished(sig.Instrument, string(models.KindPeak))
		}
		if sig.Valley.Signal {
			e.metrics.RecordSignalPublished(sig.Instrument, string(models.KindValley))
		}
	}
}

// Latest returns the most recent signal for the instrument, or nil when
// no cycle has produced one yet.
func (e *Evaluator) Latest(instrument string) *models.FusedSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sig, ok := e.latest[instrument]
	if !ok {
		return nil
	}
	cp := *sig
	return &cp
}

// LatestAll returns the most recent signal per instrument.
func (e *Evaluator) LatestAll() []*models.FusedSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.FusedSignal, 0, len(e.latest))
	for _, instrument := range e.instruments {
		if sig, ok := e.latest[instrument]; ok {
			cp := *sig
			out = append(out, &cp)
		}
	}
	return out
}

// History returns the retained fusion records for the instrument.
func (e *Evaluator) History(instrument string) []models.FusionRecord {
	if e.fuser == nil {
		return nil
	}
	return e.fuser.History(instrument)
}

// Instruments returns the configured instrument set.
func (e *Evaluator) Instruments() []string {
	return e.instruments
}
