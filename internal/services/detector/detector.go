// Package detector scores price series for turning-point candidates.
// One Detector front-end enforces the outer window gate; the two
// ConditionEvaluator strategies (coarse bar-level, fine tick-level)
// carry the actual condition sets.
package detector

import (
    "fmt"

    "PivotScan/internal/domain/models"
    domsvc "PivotScan/internal/domain/service"
)

// Default outer window gates per variant.
const (
    DefaultCoarseWindow = 20
    DefaultFineWindow   = 60
)

// ConditionEvaluator scores one snapshot that already passed the outer
// window gate.
type ConditionEvaluator interface {
    Name() string
    Evaluate(in models.DetectionInput) models.TimeframeResult
}

// Detector wraps a ConditionEvaluator with the minimum-series gate.
// Too little history is a neutral outcome, never an error.
type Detector struct {
    eval       ConditionEvaluator
    windowSize int
}

func New(eval ConditionEvaluator, windowSize int) (*Detector, error) {
    if eval == nil {
        return nil, fmt.Errorf("condition evaluator is required")
    }
    if windowSize <= 0 {
        return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
    }
    return &Detector{eval: eval, windowSize: windowSize}, nil
}

var _ domsvc.TurningPointDetector = (*Detector)(nil)

func (d *Detector) Name() string { return d.eval.Name() }

func (d *Detector) Detect(in models.DetectionInput) models.TimeframeResult {
    if len(in.Prices) < d.windowSize {
        return neutral(in)
    }
    return d.eval.Evaluate(in)
}

// neutral is the defined insufficient-data result: no detections,
// sentinel metrics, quality low.
func neutral(in models.DetectionInput) models.TimeframeResult {
    cur := in.CurrentPrice
    if cur == 0 && len(in.Prices) > 0 {
        cur = in.Prices[len(in.Prices)-1]
    }
    return models.TimeframeResult{
        CurrentPrice:    cur,
        RSI:             50,
        VolumeConfirmed: true,
        VolumeIntensity: 1.0,
        PricePosition:   models.PositionUnknown,
        MicroScore:      in.MicroScore,
        Quality:         models.QualityLow,
    }
}

func lastOrZero(s []float64) float64 {
    if len(s) == 0 {
        return 0
    }
    return s[len(s)-1]
}

func currentPrice(in models.DetectionInput) float64 {
    if in.CurrentPrice != 0 {
        return in.CurrentPrice
    }
    if len(in.Prices) > 0 {
        return in.Prices[len(in.Prices)-1]
    }
    return 0
}

func maxOf(s []float64) float64 {
    m := s[0]
    for _, v := range s[1:] {
        if v > m {
            m = v
        }
    }
    return m
}

func minOf(s []float64) float64 {
    m := s[0]
    for _, v := range s[1:] {
        if v < m {
            m = v
        }
    }
    return m
}

func tail(s []float64, n int) []float64 {
    if len(s) <= n {
        return s
    }
    return s[len(s)-n:]
}
