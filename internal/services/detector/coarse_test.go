package detector

import (
    "math"
    "testing"

    "PivotScan/internal/domain/models"
)

func mustCoarseDetector(t *testing.T, window int) *Detector {
    t.Helper()
    eval, err := NewCoarseEvaluator(DefaultCoarseConfig())
    if err != nil {
        t.Fatalf("new coarse evaluator: %v", err)
    }
    d, err := New(eval, window)
    if err != nil {
        t.Fatalf("new detector: %v", err)
    }
    return d
}

func linearSeries(start, step float64, n int) []float64 {
    out := make([]float64, n)
    for i := range out {
        out[i] = start + step*float64(i)
    }
    return out
}

func flatSeries(value float64, n int) []float64 {
    out := make([]float64, n)
    for i := range out {
        out[i] = value
    }
    return out
}

func TestNewDetectorRejectsBadParams(t *testing.T) {
    eval, err := NewCoarseEvaluator(DefaultCoarseConfig())
    if err != nil {
        t.Fatalf("new coarse evaluator: %v", err)
    }
    if _, err := New(eval, 0); err == nil {
        t.Fatal("expected error for zero window")
    }
    if _, err := New(nil, 20); err == nil {
        t.Fatal("expected error for nil evaluator")
    }
}

func TestCoarseConfigValidation(t *testing.T) {
    bad := DefaultCoarseConfig()
    bad.RSIUpper = 20
    if _, err := NewCoarseEvaluator(bad); err == nil {
        t.Fatal("expected error for rsi upper below lower")
    }
    bad = DefaultCoarseConfig()
    bad.MAPeriods = [3]int{10, 5, 20}
    if _, err := NewCoarseEvaluator(bad); err == nil {
        t.Fatal("expected error for non-increasing ma periods")
    }
    bad = DefaultCoarseConfig()
    bad.DeviationThreshold = 0
    if _, err := NewCoarseEvaluator(bad); err == nil {
        t.Fatal("expected error for zero deviation threshold")
    }
}

func TestCoarseShortSeriesIsNeutral(t *testing.T) {
    d := mustCoarseDetector(t, 20)
    res := d.Detect(models.DetectionInput{
        Instrument: "AAA",
        Prices:     linearSeries(100, 1, 5),
    })
    if res.Peak.Signal || res.Valley.Signal {
        t.Fatalf("expected no signals, got %+v", res)
    }
    if res.Peak.Strength != 0 || res.Valley.Strength != 0 {
        t.Fatalf("expected zero strengths, got %+v", res)
    }
    if res.RSI != 50 || res.PricePosition != models.PositionUnknown {
        t.Fatalf("expected neutral metrics, got rsi=%v position=%v", res.RSI, res.PricePosition)
    }
    if !res.VolumeConfirmed || res.VolumeIntensity != 1.0 {
        t.Fatalf("expected neutral volume fields, got %+v", res)
    }
}

func TestCoarsePeakOnSteepRally(t *testing.T) {
    d := mustCoarseDetector(t, 20)
    prices := linearSeries(100, 2, 20) // 100..138
    res := d.Detect(models.DetectionInput{
        Instrument:   "AAA",
        Prices:       prices,
        CurrentPrice: prices[len(prices)-1],
    })
    // Extreme, overbought RSI, MA deviation and MA ordering hold; the
    // stagnation condition does not on a monotone rise.
    if !res.Peak.Signal {
        t.Fatalf("expected peak signal, got %+v", res.Peak)
    }
    if math.Abs(res.Peak.Strength-0.8) > 1e-9 {
        t.Fatalf("peak strength = %v, want 0.8", res.Peak.Strength)
    }
    if res.Valley.Signal {
        t.Fatalf("unexpected valley signal %+v", res.Valley)
    }
    if res.RSI != 100 {
        t.Fatalf("rsi = %v, want 100", res.RSI)
    }
    if res.PricePosition != models.PositionStrongBullish {
        t.Fatalf("position = %v, want strong_bullish", res.PricePosition)
    }
}

func TestCoarseValleyOnSteepDecline(t *testing.T) {
    d := mustCoarseDetector(t, 20)
    prices := linearSeries(138, -2, 20) // 138..100
    res := d.Detect(models.DetectionInput{
        Instrument:   "AAA",
        Prices:       prices,
        CurrentPrice: prices[len(prices)-1],
    })
    if !res.Valley.Signal {
        t.Fatalf("expected valley signal, got %+v", res.Valley)
    }
    if math.Abs(res.Valley.Strength-0.8) > 1e-9 {
        t.Fatalf("valley strength = %v, want 0.8", res.Valley.Strength)
    }
    if res.Peak.Signal {
        t.Fatalf("unexpected peak signal %+v", res.Peak)
    }
    if res.RSI != 0 {
        t.Fatalf("rsi = %v, want 0", res.RSI)
    }
    if res.PricePosition != models.PositionStrongBearish {
        t.Fatalf("position = %v, want strong_bearish", res.PricePosition)
    }
}

func TestCoarseFlatSeriesStaysQuiet(t *testing.T) {
    d := mustCoarseDetector(t, 20)
    res := d.Detect(models.DetectionInput{
        Instrument: "AAA",
        Prices:     flatSeries(100, 20),
    })
    if res.Peak.Signal || res.Valley.Signal {
        t.Fatalf("expected no signals on flat series, got %+v", res)
    }
    if res.RSI != 50 {
        t.Fatalf("rsi = %v, want 50", res.RSI)
    }
    if res.PricePosition != models.PositionUnknown {
        t.Fatalf("position = %v, want unknown", res.PricePosition)
    }
}

func TestCoarseStagnationCountsIntoPeak(t *testing.T) {
    d := mustCoarseDetector(t, 20)
    // Rally into a fresh high, then a one-bar pullback.
    prices := append(linearSeries(100, 2, 18), 138, 137)
    res := d.Detect(models.DetectionInput{
        Instrument:   "AAA",
        Prices:       prices,
        CurrentPrice: prices[len(prices)-1],
    })
    if !res.Peak.Signal {
        t.Fatalf("expected peak signal after stall, got %+v", res.Peak)
    }
    if math.Abs(res.Peak.Strength-0.8) > 1e-9 {
        t.Fatalf("peak strength = %v, want 0.8", res.Peak.Strength)
    }
}

func TestCoarseInnerGateZeroesDetectionsOnly(t *testing.T) {
    // Window 5 passes the outer gate with 8 samples, but RSI(14) has no
    // values yet: detections stay neutral while MAs are still reported.
    d := mustCoarseDetector(t, 5)
    res := d.Detect(models.DetectionInput{
        Instrument: "AAA",
        Prices:     linearSeries(100, 1, 8),
    })
    if res.Peak.Signal || res.Peak.Strength != 0 || res.Valley.Strength != 0 {
        t.Fatalf("expected neutral detections, got %+v", res)
    }
    if res.RSI != 50 {
        t.Fatalf("rsi = %v, want neutral 50", res.RSI)
    }
    if res.MAShort == 0 {
        t.Fatal("expected short MA to be computed")
    }
}
