package detector

import (
    "fmt"

    "PivotScan/internal/domain/models"
    "PivotScan/internal/services/indicators"
)

// CoarseConfig parameterizes the bar-level condition set.
type CoarseConfig struct {
    MAPeriods          [3]int
    RSIPeriod          int
    RSIUpper           float64
    RSILower           float64
    DeviationThreshold float64 // min distance from the short MA, as a fraction
    ExtremeWindow      int
    StagnationWindow   int
    MinConditions      int
    MinSamples         int
}

func DefaultCoarseConfig() CoarseConfig {
    return CoarseConfig{
        MAPeriods:          [3]int{5, 10, 20},
        RSIPeriod:          14,
        RSIUpper:           70,
        RSILower:           30,
        DeviationThreshold: 0.015,
        ExtremeWindow:      15,
        StagnationWindow:   5,
        MinConditions:      3,
        MinSamples:         10,
    }
}

func (c CoarseConfig) validate() error {
    for _, p := range c.MAPeriods {
        if p <= 0 {
            return fmt.Errorf("ma periods must be positive, got %v", c.MAPeriods)
        }
    }
    if c.MAPeriods[0] >= c.MAPeriods[1] || c.MAPeriods[1] >= c.MAPeriods[2] {
        return fmt.Errorf("ma periods must be strictly increasing, got %v", c.MAPeriods)
    }
    if c.RSIPeriod <= 0 {
        return fmt.Errorf("rsi period must be positive, got %d", c.RSIPeriod)
    }
    if c.RSIUpper <= c.RSILower {
        return fmt.Errorf("rsi upper %v must exceed lower %v", c.RSIUpper, c.RSILower)
    }
    if c.DeviationThreshold <= 0 {
        return fmt.Errorf("deviation threshold must be positive, got %v", c.DeviationThreshold)
    }
    if c.ExtremeWindow <= 0 || c.StagnationWindow <= 1 {
        return fmt.Errorf("extreme window %d and stagnation window %d are too small", c.ExtremeWindow, c.StagnationWindow)
    }
    if c.MinConditions <= 0 || c.MinConditions > coarseConditionCount {
        return fmt.Errorf("min conditions must be in [1,%d], got %d", coarseConditionCount, c.MinConditions)
    }
    if c.MinSamples <= 0 {
        return fmt.Errorf("min samples must be positive, got %d", c.MinSamples)
    }
    return nil
}

const coarseConditionCount = 5

// CoarseEvaluator scores bar closes with five unweighted conditions per
// direction. A direction fires when at least MinConditions hold;
// strength is the satisfied/total ratio.
type CoarseEvaluator struct {
    cfg CoarseConfig
}

func NewCoarseEvaluator(cfg CoarseConfig) (*CoarseEvaluator, error) {
    if err := cfg.validate(); err != nil {
        return nil, fmt.Errorf("coarse evaluator config: %w", err)
    }
    return &CoarseEvaluator{cfg: cfg}, nil
}

var _ ConditionEvaluator = (*CoarseEvaluator)(nil)

func (e *CoarseEvaluator) Name() string { return "coarse" }

func (e *CoarseEvaluator) Evaluate(in models.DetectionInput) models.TimeframeResult {
    res := neutral(in)
    prices := in.Prices
    cur := currentPrice(in)
    res.CurrentPrice = cur

    maShort := lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[0]))
    maMedium := lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[1]))
    maLong := lastOrZero(indicators.SMA(prices, e.cfg.MAPeriods[2]))
    res.MAShort = maShort
    res.MAMedium = maMedium
    res.MALong = maLong
    res.PricePosition = pricePosition(cur, maShort, maMedium, maLong)

    rsi := indicators.RSI(prices, e.cfg.RSIPeriod)
    if len(prices) < e.cfg.MinSamples || len(rsi) == 0 {
        return res
    }
    res.RSI = rsi[len(rsi)-1]

    res.Peak = e.scorePeak(prices, cur, res.RSI, maShort, maMedium)
    res.Valley = e.scoreValley(prices, cur, res.RSI, maShort)
    return res
}

func (e *CoarseEvaluator) scorePeak(prices []float64, cur, rsi, maShort, maMedium float64) models.Detection {
    conditions := [coarseConditionCount]bool{}

    recent := tail(prices, e.cfg.ExtremeWindow)
    conditions[0] = cur >= maxOf(recent)*0.995
    conditions[1] = rsi > e.cfg.RSIUpper
    if maShort != 0 {
        conditions[2] = (cur-maShort)/maShort > e.cfg.DeviationThreshold
    }
    conditions[3] = cur > maShort && maShort > maMedium
    if n := len(prices); n >= e.cfg.StagnationWindow {
        before := prices[n-e.cfg.StagnationWindow : n-1]
        conditions[4] = prices[n-1] < maxOf(before)
    }

    return e.toDetection(conditions)
}

func (e *CoarseEvaluator) scoreValley(prices []float64, cur, rsi, maShort float64) models.Detection {
    conditions := [coarseConditionCount]bool{}

    recent := tail(prices, e.cfg.ExtremeWindow)
    conditions[0] = cur <= minOf(recent)*1.005
    conditions[1] = rsi < e.cfg.RSILower
    if maShort != 0 {
        conditions[2] = (maShort-cur)/maShort > e.cfg.DeviationThreshold
    }
    conditions[3] = cur < maShort
    if n := len(prices); n >= e.cfg.StagnationWindow {
        before := prices[n-e.cfg.StagnationWindow : n-1]
        conditions[4] = prices[n-1] > minOf(before)
    }

    return e.toDetection(conditions)
}

func (e *CoarseEvaluator) toDetection(conditions [coarseConditionCount]bool) models.Detection {
    score := 0
    for _, ok := range conditions {
        if ok {
            score++
        }
    }
    return models.Detection{
        Signal:   score >= e.cfg.MinConditions,
        Strength: float64(score) / float64(coarseConditionCount),
    }
}

func pricePosition(cur, maShort, maMedium, maLong float64) models.PricePosition {
    if maShort == 0 || maMedium == 0 || maLong == 0 {
        return models.PositionUnknown
    }
    switch {
    case cur > maShort && maShort > maMedium && maMedium > maLong:
        return models.PositionStrongBullish
    case cur > maShort && maShort > maMedium:
        return models.PositionBullish
    case cur > maShort:
        return models.PositionWeakBullish
    case cur < maShort && maShort < maMedium && maMedium < maLong:
        return models.PositionStrongBearish
    case cur < maShort && maShort < maMedium:
        return models.PositionBearish
    case cur < maShort:
        return models.PositionWeakBearish
    default:
        return models.PositionUnknown
    }
}
