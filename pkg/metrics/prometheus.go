package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the Prometheus-backed implementation of the domain
// Metrics interface. promauto registers everything on the default
// registry, which /metrics serves.
type Recorder struct {
	ticks     *prometheus.CounterVec
	signals   *prometheus.CounterVec
	errs      *prometheus.CounterVec
	prices    *prometheus.GaugeVec
	durations *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{}
	r.ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pivotscan",
		Name:      "ticks_ingested_total",
		Help:      "Ticks accepted into the engine, by source",
	}, []string{"source", "instrument"})
	r.signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pivotscan",
		Name:      "signals_published_total",
		Help:      "Fused signals handed to the sink",
	}, []string{"instrument", "kind"})
	r.errs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pivotscan",
		Name:      "errors_total",
		Help:      "Engine errors, by kind",
	}, []string{"type"})
	r.prices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pivotscan",
		Name:      "last_price",
		Help:      "Most recent trade price per instrument",
	}, []string{"instrument"})
	r.durations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pivotscan",
		Name:      "operation_duration_seconds",
		Help:      "Time spent in named engine operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	return r
}

func (r *Recorder) RecordTickIngested(source, instrument string) {
	r.ticks.WithLabelValues(source, instrument).Inc()
}

func (r *Recorder) RecordSignalPublished(instrument, kind string) {
	r.signals.WithLabelValues(instrument, kind).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errs.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.prices.WithLabelValues(instrument).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.durations.WithLabelValues(op).Observe(seconds)
}
