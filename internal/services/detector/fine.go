package detector

import (
    "fmt"
    "math"

    "PivotScan/internal/domain/models"
    "PivotScan/internal/services/indicators"
)

// Condition weights of the fine variant. Calibration constants, kept
// literal; they intentionally sum to 1.0 only when every condition is
// applicable.
const (
    weightExtreme    = 0.2
    weightRSI        = 0.15
    weightVWAP       = 0.15
    weightMomentum   = 0.1
    weightVolume     = 0.1
    weightIntensity  = 0.1
    weightMicro      = 0.1
    weightVolatility = 0.1
)

// FineConfig parameterizes the tick-level condition set.
type FineConfig struct {
    MAPeriods        [3]int
    RSIPeriod        int
    RSIUpper         float64
    RSILower         float64
    VWAPDeviation    float64
    FireThreshold    float64
    IntensitySurge   float64
    MicroThreshold   float64
    VolatilityFloor  float64
    MomentumPeriod   int
    VolatilityWindow int
    ExtremeWindow    int
    MinSamples       int
}

func DefaultFineConfig() FineConfig {
    return FineConfig{
        MAPeriods:        [3]int{10, 20, 30},
        RSIPeriod:        30,
        RSIUpper:         65,
        RSILower:         35,
        VWAPDeviation:    0.005,
        FireThreshold:    0.6,
        IntensitySurge:   1.5,
        MicroThreshold:   0.6,
        VolatilityFloor:  0.02,
        MomentumPeriod:   10,
        VolatilityWindow: 20,
        ExtremeWindow:    15,
        MinSamples:       20,
    }
}

func (c FineConfig) validate() error {
    for _, p := range c.MAPeriods {
        if p <= 0 {
            return fmt.Errorf("ma periods must be positive, got %v", c.MAPeriods)
        }
    }
    if c.RSIPeriod <= 0 {
        return fmt.Errorf("rsi period must be positive, got %d", c.RSIPeriod)
    }
    if c.RSIUpper <= c.RSILower {
        return fmt.Errorf("rsi upper %v must exceed lower %v", c.RSIUpper, c.RSILower)
    }
    if c.VWAPDeviation <= 0 {
        return fmt.Errorf("vwap deviation must be positive, got %v", c.VWAPDeviation)
    }
    if c.FireThreshold <= 0 || c.FireThreshold > 1 {
        return fmt.Errorf("fire threshold must be in (0,1], got %v", c.FireThreshold)
    }
    if c.IntensitySurge <= 0 || c.MicroThreshold <= 0 || c.VolatilityFloor <= 0 {
        return fmt.Errorf("surge/micro/volatility thresholds must be positive")
    }
    if c.MomentumPeriod <= 0 || c.VolatilityWindow <= 0 || c.ExtremeWindow <= 0 {
        return fmt.Errorf("momentum/volatility/extreme windows must be positive")
    }
    if c.MinSamples <= 0 {
        return fmt.Errorf("min samples must be positive, got %d", c.MinSamples)
    }
    return nil
}

// FineEvaluator scores bucket closes with eight weighted conditions per
// direction and owns the rate limiter that suppresses repeated fires.
// A direction fires when the weighted sum reaches FireThreshold;
// strength is the weighted sum itself.
type FineEvaluator struct {
    cfg     FineConfig
    limiter *RateLimiter
}

func NewFineEvaluator(cfg FineConfig, limiter *RateLimiter) (*FineEvaluator, error) {
    if err := cfg.validate(); err != nil {
        return nil, fmt.Errorf("fine evaluator config: %w", err)
    }
    return &FineEvaluator{cfg: cfg, limiter: limiter}, nil
}

var _ ConditionEvaluator = (*FineEvaluator)(nil)

func (e *FineEvaluator) Name() string { return "fine" }

func (e *FineEvaluator) Evaluate(in models.DetectionInput) models.TimeframeResult {
    res := neutral(in)
    prices := in.Prices
    cur := currentPrice(in)
    res.CurrentPrice = cur

    rsi := indicators.RSI(prices, e.cfg.RSIPeriod)
    if len(prices) < e.cfg.MinSamples || len(rsi) == 0 {
        return res
    }

    res.RSI = rsi[len(rsi)-1]
    res.MAShort = lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[0]))
    res.MAMedium = lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[1]))
    res.MALong = lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[2]))

    momentum := indicators.Momentum(prices, e.cfg.MomentumPeriod)
    res.Momentum = lastOrZero(momentum)
    res.Volatility = indicators.ReturnVolatility(prices, e.cfg.VolatilityWindow)
    res.VWAPDeviation = vwapDeviation(prices, in.VWAP)
    res.VolumeIntensity = e.volumeIntensity(in.Volumes)
    res.VolumeConfirmed = volumeConfirmation(prices, in.Volumes)

    peak := e.scoreDirection(in, res, momentum, cur, true)
    valley := e.scoreDirection(in, res, momentum, cur, false)
    if e.limiter != nil {
        peak.Signal, peak.Strength = e.limiter.Filter(in.Instrument, models.KindPeak, peak.Signal, peak.Strength, in.Now)
        valley.Signal, valley.Strength = e.limiter.Filter(in.Instrument, models.KindValley, valley.Signal, valley.Strength, in.Now)
    }
    res.Peak = peak
    res.Valley = valley
    res.Quality = signalQuality(peak.Strength, valley.Strength, in.MicroScore)
    return res
}

func (e *FineEvaluator) scoreDirection(in models.DetectionInput, res models.TimeframeResult, momentum []float64, cur float64, isPeak bool) models.Detection {
    score := 0.0

    if isPeak {
        extremes := in.Highs
        if len(extremes) == 0 {
            extremes = in.Prices
        }
        if cur >= maxOf(tail(extremes, e.cfg.ExtremeWindow))*0.999 {
            score += weightExtreme
        }
    } else {
        extremes := in.Lows
        if len(extremes) == 0 {
            extremes = in.Prices
        }
        if cur <= minOf(tail(extremes, e.cfg.ExtremeWindow))*1.001 {
            score += weightExtreme
        }
    }

    if isPeak && res.RSI > e.cfg.RSIUpper {
        score += weightRSI
    }
    if !isPeak && res.RSI < e.cfg.RSILower {
        score += weightRSI
    }

    if isPeak && res.VWAPDeviation > e.cfg.VWAPDeviation {
        score += weightVWAP
    }
    if !isPeak && res.VWAPDeviation < -e.cfg.VWAPDeviation {
        score += weightVWAP
    }

    if momentumRun(momentum, isPeak) {
        score += weightMomentum
    }
    if res.VolumeConfirmed {
        score += weightVolume
    }
    if res.VolumeIntensity > e.cfg.IntensitySurge {
        score += weightIntensity
    }
    if isPeak && in.MicroScore > e.cfg.MicroThreshold {
        score += weightMicro
    }
    if !isPeak && in.MicroScore < -e.cfg.MicroThreshold {
        score += weightMicro
    }
    if res.Volatility > e.cfg.VolatilityFloor {
        score += weightVolatility
    }

    return models.Detection{Signal: score >= e.cfg.FireThreshold, Strength: score}
}

// momentumRun reports three consecutive momentum readings moving the
// same way: weakening into a peak, strengthening out of a valley.
func momentumRun(momentum []float64, weakening bool) bool {
    n := len(momentum)
    if n < 3 {
        return false
    }
    a, b, c := momentum[n-3], momentum[n-2], momentum[n-1]
    if weakening {
        return c < b && b < a
    }
    return c > b && b > a
}

func vwapDeviation(prices, vwap []float64) float64 {
    if len(prices) == 0 || len(vwap) == 0 {
        return 0
    }
    v := vwap[len(vwap)-1]
    if v == 0 {
        return 0
    }
    return (prices[len(prices)-1] - v) / v
}

// volumeIntensity compares the newest five volumes against the trailing
// base window. Insufficient data or an empty base reads as 1.0.
func (e *FineEvaluator) volumeIntensity(volumes []float64) float64 {
    if len(volumes) < 10 {
        return 1.0
    }
    recent := indicators.Mean(volumes[len(volumes)-5:])
    var base float64
    if len(volumes) >= 20 {
        base = indicators.Mean(volumes[len(volumes)-20 : len(volumes)-5])
    } else {
        base = indicators.Mean(volumes[:len(volumes)-5])
    }
    if base <= 0 {
        return 1.0
    }
    return recent / base
}

// volumeConfirmation requires a volume surge together with price/volume
// sync: rising volume on a directional price move. Vacuously true below
// ten samples.
func volumeConfirmation(prices, volumes []float64) bool {
    if len(prices) < 10 || len(volumes) < 10 {
        return true
    }
    n := len(volumes)
    surge := volumes[n-1] > 1.3*indicators.Mean(volumes[n-10:])

    pn := len(prices)
    var priceChange float64
    if prices[pn-5] != 0 {
        priceChange = (prices[pn-1] - prices[pn-5]) / prices[pn-5]
    }
    var volumeChange float64
    if base := indicators.Mean(volumes[n-5 : n-1]); base > 0 {
        volumeChange = (volumes[n-1] - base) / base
    }
    sync := (priceChange > 0 && volumeChange > 0) || (priceChange < 0 && volumeChange > 0)
    return surge && sync
}

// signalQuality grades the stronger direction boosted by microstructure
// conviction.
func signalQuality(peakStrength, valleyStrength, microScore float64) models.Quality {
    total := math.Max(peakStrength, valleyStrength) + math.Abs(microScore)*0.2
    switch {
    case total > 0.8:
        return models.QualityHigh
    case total > 0.6:
        return models.QualityMedium
    default:
        return models.QualityLow
    }
}
