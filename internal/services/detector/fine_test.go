package detector

import (
    "math"
    "testing"
    "time"

    "PivotScan/internal/domain/models"
)

var fineBase = time.Date(2025, 6, 2, 12, 0, 10, 0, time.UTC)

func mustFineDetector(t *testing.T, window int, limiter *RateLimiter) *Detector {
    t.Helper()
    eval, err := NewFineEvaluator(DefaultFineConfig(), limiter)
    if err != nil {
        t.Fatalf("new fine evaluator: %v", err)
    }
    d, err := New(eval, window)
    if err != nil {
        t.Fatalf("new detector: %v", err)
    }
    return d
}

func mustLimiter(t *testing.T) *RateLimiter {
    t.Helper()
    rl, err := NewRateLimiter(DefaultCooldown, DefaultMaxPerMinute)
    if err != nil {
        t.Fatalf("new rate limiter: %v", err)
    }
    return rl
}

// riseReverseSeries builds the regression series: 60 samples climbing
// in exact 0.125 steps (100 -> 107.375), then count reversal samples
// falling 0.5 each. Volumes surge into the top and into the flush so
// the volume conditions participate.
func riseReverseSeries(reversal int) (prices, volumes, vwap []float64) {
    prices = make([]float64, 60)
    volumes = make([]float64, 60)
    vwap = make([]float64, 60)
    for i := range prices {
        prices[i] = 100 + 0.125*float64(i)
        volumes[i] = 10
        vwap[i] = prices[i] - 1
    }
    for i := 55; i < 59; i++ {
        volumes[i] = 15
    }
    volumes[59] = 30

    fallVolumes := []float64{10, 10, 10, 10, 10, 10, 15, 15, 15, 50}
    for j := 1; j <= reversal; j++ {
        p := 107.375 - 0.5*float64(j)
        prices = append(prices, p)
        volumes = append(volumes, fallVolumes[j-1])
        vwap = append(vwap, p+1)
    }
    return prices, volumes, vwap
}

func fineInput(prices, volumes, vwap []float64, micro float64, now time.Time) models.DetectionInput {
    return models.DetectionInput{
        Instrument:   "AAA",
        Prices:       prices,
        Volumes:      volumes,
        Highs:        prices,
        Lows:         prices,
        VWAP:         vwap,
        CurrentPrice: prices[len(prices)-1],
        MicroScore:   micro,
        Now:          now,
    }
}

func TestFineShortSeriesIsNeutral(t *testing.T) {
    d := mustFineDetector(t, 60, nil)
    res := d.Detect(models.DetectionInput{
        Instrument: "AAA",
        Prices:     linearSeries(100, 0.1, 30),
        Now:        fineBase,
    })
    if res.Peak.Signal || res.Peak.Strength != 0 || res.Valley.Strength != 0 {
        t.Fatalf("expected neutral result, got %+v", res)
    }
    if res.RSI != 50 || !res.VolumeConfirmed || res.VolumeIntensity != 1.0 || res.Quality != models.QualityLow {
        t.Fatalf("expected neutral metrics, got %+v", res)
    }
}

func TestFineInnerGateNeedsRSI(t *testing.T) {
    // 25 samples pass a window of 25 but RSI(30) has no values yet.
    d := mustFineDetector(t, 25, nil)
    res := d.Detect(fineInput(linearSeries(100, 0.5, 25), flatSeries(10, 25), linearSeries(99, 0.5, 25), 0, fineBase))
    if res.Peak.Signal || res.Peak.Strength != 0 {
        t.Fatalf("expected neutral detections, got %+v", res)
    }
    if res.RSI != 50 {
        t.Fatalf("rsi = %v, want neutral 50", res.RSI)
    }
}

func TestFinePeakAtLocalMaximum(t *testing.T) {
    d := mustFineDetector(t, 60, mustLimiter(t))
    prices, volumes, vwap := riseReverseSeries(0)
    res := d.Detect(fineInput(prices, volumes, vwap, 0.7, fineBase))

    if !res.Peak.Signal {
        t.Fatalf("expected peak at local maximum, got %+v", res.Peak)
    }
    // Extreme 0.2 + RSI 0.15 + VWAP 0.15 + volume 0.1 + intensity 0.1
    // + microstructure 0.1 = 0.8.
    if math.Abs(res.Peak.Strength-0.8) > 1e-9 {
        t.Fatalf("peak strength = %v, want 0.8", res.Peak.Strength)
    }
    if res.Valley.Signal {
        t.Fatalf("unexpected valley at maximum %+v", res.Valley)
    }
    if math.Abs(res.Valley.Strength-0.2) > 1e-9 {
        t.Fatalf("valley strength = %v, want 0.2", res.Valley.Strength)
    }
    if res.RSI != 100 {
        t.Fatalf("rsi = %v, want 100", res.RSI)
    }
    if res.Quality != models.QualityHigh {
        t.Fatalf("quality = %v, want high", res.Quality)
    }
    if !res.VolumeConfirmed {
        t.Fatal("expected volume confirmation at the top")
    }
    if res.VolumeIntensity <= 1.5 {
        t.Fatalf("intensity = %v, want surge above 1.5", res.VolumeIntensity)
    }
    if res.VWAPDeviation <= 0.005 {
        t.Fatalf("vwap deviation = %v, want above 0.005", res.VWAPDeviation)
    }
}

func TestFineValleyAsReversalProceeds(t *testing.T) {
    limiter := mustLimiter(t)
    d := mustFineDetector(t, 60, limiter)

    prices, volumes, vwap := riseReverseSeries(0)
    peakRes := d.Detect(fineInput(prices, volumes, vwap, 0.7, fineBase))
    if !peakRes.Peak.Signal {
        t.Fatalf("expected peak first, got %+v", peakRes.Peak)
    }

    prices, volumes, vwap = riseReverseSeries(10)
    res := d.Detect(fineInput(prices, volumes, vwap, -0.7, fineBase.Add(time.Minute)))

    if !res.Valley.Signal {
        t.Fatalf("expected valley after reversal, got %+v", res.Valley)
    }
    if math.Abs(res.Valley.Strength-0.8) > 1e-9 {
        t.Fatalf("valley strength = %v, want 0.8", res.Valley.Strength)
    }
    if res.Peak.Signal {
        t.Fatalf("unexpected peak during decline %+v", res.Peak)
    }
    // Weakening momentum, volume confirmation and intensity still score
    // for the peak side without firing it.
    if math.Abs(res.Peak.Strength-0.3) > 1e-9 {
        t.Fatalf("peak strength = %v, want 0.3", res.Peak.Strength)
    }
    if res.RSI >= 35 {
        t.Fatalf("rsi = %v, want oversold below 35", res.RSI)
    }
    if res.Quality != models.QualityHigh {
        t.Fatalf("quality = %v, want high", res.Quality)
    }
}

func TestFineCooldownSuppressesRepeatFire(t *testing.T) {
    d := mustFineDetector(t, 60, mustLimiter(t))
    prices, volumes, vwap := riseReverseSeries(0)

    first := d.Detect(fineInput(prices, volumes, vwap, 0.7, fineBase))
    if !first.Peak.Signal {
        t.Fatalf("expected first peak to fire, got %+v", first.Peak)
    }
    second := d.Detect(fineInput(prices, volumes, vwap, 0.7, fineBase.Add(5*time.Second)))
    if second.Peak.Signal || second.Peak.Strength != 0 {
        t.Fatalf("expected suppressed repeat, got %+v", second.Peak)
    }
    if second.Quality != models.QualityLow {
        t.Fatalf("quality after suppression = %v, want low", second.Quality)
    }
}

func TestFineWithoutLimiterKeepsStrengths(t *testing.T) {
    d := mustFineDetector(t, 60, nil)
    prices, volumes, vwap := riseReverseSeries(0)
    for i := 0; i < 2; i++ {
        res := d.Detect(fineInput(prices, volumes, vwap, 0.7, fineBase))
        if !res.Peak.Signal || math.Abs(res.Peak.Strength-0.8) > 1e-9 {
            t.Fatalf("pass %d: peak = %+v, want unfiltered 0.8", i, res.Peak)
        }
    }
}

func TestFineConfigValidation(t *testing.T) {
    bad := DefaultFineConfig()
    bad.FireThreshold = 0
    if _, err := NewFineEvaluator(bad, nil); err == nil {
        t.Fatal("expected error for zero fire threshold")
    }
    bad = DefaultFineConfig()
    bad.RSIUpper = 10
    if _, err := NewFineEvaluator(bad, nil); err == nil {
        t.Fatal("expected error for rsi upper below lower")
    }
}

func TestVolumeIntensityFallbacks(t *testing.T) {
    eval, err := NewFineEvaluator(DefaultFineConfig(), nil)
    if err != nil {
        t.Fatalf("new fine evaluator: %v", err)
    }
    if got := eval.volumeIntensity(flatSeries(10, 5)); got != 1.0 {
        t.Fatalf("short-series intensity = %v, want 1.0", got)
    }
    if got := eval.volumeIntensity(flatSeries(0, 30)); got != 1.0 {
        t.Fatalf("zero-base intensity = %v, want 1.0", got)
    }
    volumes := append(flatSeries(10, 15), flatSeries(20, 5)...)
    if got := eval.volumeIntensity(volumes); math.Abs(got-2.0) > 1e-9 {
        t.Fatalf("intensity = %v, want 2.0", got)
    }
}

func TestVolumeConfirmationVacuousBelowTenSamples(t *testing.T) {
    if !volumeConfirmation(flatSeries(100, 5), flatSeries(10, 5)) {
        t.Fatal("expected vacuous confirmation below ten samples")
    }
    // Flat volume with no surge fails once enough samples exist.
    if volumeConfirmation(linearSeries(100, 1, 20), flatSeries(10, 20)) {
        t.Fatal("expected no confirmation without a surge")
    }
}
