package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    APILatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pivotscan",
            Subsystem: "api",
            Name:      "latency_seconds",
            Help:      "Latency of signal API endpoints",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"endpoint"},
    )

    APIErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pivotscan",
            Subsystem: "api",
            Name:      "errors_total",
            Help:      "Errors by signal API endpoint",
        },
        []string{"endpoint"},
    )

    EvalLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pivotscan",
            Subsystem: "engine",
            Name:      "evaluation_seconds",
            Help:      "Duration of one evaluation cycle per instrument",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"instrument"},
    )

    EvalOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pivotscan",
            Subsystem: "engine",
            Name:      "evaluations_total",
            Help:      "Evaluation cycles by outcome (fused, coarse_only, skipped, error)",
        },
        []string{"instrument", "outcome"},
    )

    SignalsConfirmed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pivotscan",
            Subsystem: "engine",
            Name:      "signals_confirmed_total",
            Help:      "Confirmed fused signals by kind",
        },
        []string{"instrument", "kind"},
    )

    FeedDrops = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pivotscan",
            Subsystem: "feed",
            Name:      "dropped_ticks_total",
            Help:      "Ticks dropped because the stream buffer was full",
        },
        []string{"instrument"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(APILatency, APIErrors, EvalLatency, EvalOutcomes, SignalsConfirmed, FeedDrops)
    })
}
