package models

import "time"

// SignalKind distinguishes the two turning-point directions.
type SignalKind string

const (
	KindPeak   SignalKind = "peak"
	KindValley SignalKind = "valley"
)

// Detection is one boolean turning-point decision with its score.
type Detection struct {
	Signal   bool
	Strength float64 // in [0, 1]
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // coarse and fine agree on both directions
	ConfidenceMedium Confidence = "medium" // agree on exactly one
	ConfidenceLow    Confidence = "low"
)

type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// PricePosition labels the close relative to its moving-average stack.
type PricePosition string

const (
	PositionStrongBullish PricePosition = "strong_bullish"
	PositionBullish       PricePosition = "bullish"
	PositionWeakBullish   PricePosition = "weak_bullish"
	PositionStrongBearish PricePosition = "strong_bearish"
	PositionBearish       PricePosition = "bearish"
	PositionWeakBearish   PricePosition = "weak_bearish"
	PositionUnknown       PricePosition = "unknown"
)

// DetectionInput is one series snapshot handed to a detector. The fine
// path fills Highs/Lows/VWAP/MicroScore from the bucket window; the
// coarse path passes closes only.
type DetectionInput struct {
	Instrument   string
	Prices       []float64
	Volumes      []float64
	Highs        []float64
	Lows         []float64
	VWAP         []float64
	CurrentPrice float64
	MicroScore   float64
	Now          time.Time
}

// TimeframeResult is the full outcome of one detector pass over one
// timeframe. The coarse path fills the moving-average and position
// fields; the fine path fills momentum, volume, volatility, VWAP,
// microstructure and quality. Fields outside a variant's scope keep
// their neutral values.
type TimeframeResult struct {
	Peak   Detection
	Valley Detection

	CurrentPrice  float64
	RSI           float64
	MAShort       float64
	MAMedium      float64
	MALong        float64
	PricePosition PricePosition

	Momentum        float64
	VolumeConfirmed bool
	VolumeIntensity float64
	Volatility      float64
	VWAPDeviation   float64
	MicroScore      float64
	Quality         Quality
}

// FusedSignal is the engine's per-instrument, per-cycle output.
// When Fused is false the fine window was too short: Peak/Valley carry
// the coarse detections unchanged and Confidence is empty.
type FusedSignal struct {
	Instrument string
	Timestamp  time.Time
	Peak       Detection
	Valley     Detection
	Confidence Confidence
	Fused      bool
	Coarse     TimeframeResult
	Fine       TimeframeResult
}

// FusionRecord is one observability entry in the per-instrument fusion
// history window.
type FusionRecord struct {
	Timestamp       time.Time
	PeakConfirmed   bool
	ValleyConfirmed bool
}

// MicrostructureSnapshot is the read-side view of one instrument's tick
// tail: the metrics, the composite score, and how many ticks backed them.
type MicrostructureSnapshot struct {
	Instrument string
	Timestamp  time.Time
	TickCount  int
	Metrics    MicroMetrics
	Score      float64
}

// MicroMetrics are the short-horizon raw-tick measurements behind the
// microstructure score.
type MicroMetrics struct {
	PriceMomentum   float64
	VolumeIntensity float64
	Volatility      float64
	TickFrequency   float64 // ticks per minute over the lookback
	AvgTickSize     float64
	PriceTrend      float64
	VolumeTrend     float64
}
