package service

import (
	"time"

	"PivotScan/internal/domain/models"
)

// TurningPointDetector scores one series snapshot for peak/valley
// candidates. Implementations are pure over the input: insufficient data
// yields the neutral result, never an error.
type TurningPointDetector interface {
	Detect(in models.DetectionInput) models.TimeframeResult
}

// MicrostructureAnalyzer turns a short raw-tick horizon into bounded
// metrics and a composite score in [-1, 1].
type MicrostructureAnalyzer interface {
	Metrics(ticks []models.Tick, now time.Time) models.MicroMetrics
	Score(m models.MicroMetrics) float64
}

// SignalFuser blends the coarse and fine results of one instrument into
// the confirmed decision and keeps the rolling fusion history.
type SignalFuser interface {
	Fuse(instrument string, coarse, fine models.TimeframeResult, now time.Time) models.FusedSignal
	History(instrument string) []models.FusionRecord
}
