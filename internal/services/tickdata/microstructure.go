package tickdata

import (
    "fmt"
    "time"

    "PivotScan/internal/domain/models"
    domsvc "PivotScan/internal/domain/service"
    "PivotScan/internal/services/indicators"
)

const DefaultMicroLookback = 2 * time.Minute

// metricsHorizon caps how many of the newest ticks feed the per-metric
// math; tick frequency still counts the whole lookback.
const metricsHorizon = 20

// Analyzer derives bounded microstructure metrics and a composite score
// from a short raw-tick horizon. Fewer than 10 ticks in the lookback is
// a defined neutral outcome.
type Analyzer struct {
    lookback time.Duration
}

func NewAnalyzer(lookback time.Duration) (*Analyzer, error) {
    if lookback <= 0 {
        return nil, fmt.Errorf("microstructure lookback must be positive, got %v", lookback)
    }
    return &Analyzer{lookback: lookback}, nil
}

var _ domsvc.MicrostructureAnalyzer = (*Analyzer)(nil)

func neutralMetrics() models.MicroMetrics {
    return models.MicroMetrics{VolumeIntensity: 1.0}
}

// Metrics computes the raw-tick measurements over ticks newer than
// now minus the lookback.
func (a *Analyzer) Metrics(ticks []models.Tick, now time.Time) models.MicroMetrics {
    cutoff := now.Add(-a.lookback)
    recent := make([]models.Tick, 0, len(ticks))
    for _, t := range ticks {
        if !t.Timestamp.Before(cutoff) {
            recent = append(recent, t)
        }
    }
    if len(recent) < 10 {
        return neutralMetrics()
    }

    window := recent
    if len(window) > metricsHorizon {
        window = window[len(window)-metricsHorizon:]
    }
    prices := make([]float64, len(window))
    volumes := make([]float64, len(window))
    for i, t := range window {
        prices[i] = t.Price
        volumes[i] = t.Volume
    }

    m := models.MicroMetrics{
        VolumeIntensity: 1.0,
        TickFrequency:   float64(len(recent)) / a.lookback.Minutes(),
        AvgTickSize:     indicators.Mean(volumes),
        Volatility:      indicators.PopulationStd(simpleReturns(prices)),
    }
    if n := len(prices); n >= 5 && prices[n-5] != 0 {
        m.PriceMomentum = (prices[n-1] - prices[n-5]) / prices[n-5]
    }
    if len(volumes) > 5 {
        earlier := indicators.Mean(volumes[:len(volumes)-5])
        if earlier > 0 {
            m.VolumeIntensity = indicators.Mean(volumes[len(volumes)-5:]) / earlier
        }
    }
    if last := prices[len(prices)-1]; last != 0 {
        m.PriceTrend = indicators.Slope(prices) / last
    }
    if meanVol := indicators.Mean(volumes); meanVol != 0 {
        m.VolumeTrend = indicators.Slope(volumes) / meanVol
    }
    return m
}

// Score folds the metrics into one composite in [-1, 1]: directional
// contributions for momentum and trend, symmetric contributions for
// volume intensity, and a positive bump for dense tick flow.
func (a *Analyzer) Score(m models.MicroMetrics) float64 {
    score := 0.0
    if m.PriceMomentum > 0.002 {
        score += 0.3
    } else if m.PriceMomentum < -0.002 {
        score -= 0.3
    }
    if m.VolumeIntensity > 1.5 {
        score += 0.2
    } else if m.VolumeIntensity < 0.7 {
        score -= 0.2
    }
    if m.PriceTrend > 0.001 {
        score += 0.3
    } else if m.PriceTrend < -0.001 {
        score -= 0.3
    }
    if m.TickFrequency > 30 {
        score += 0.2
    }
    if score > 1 {
        return 1
    }
    if score < -1 {
        return -1
    }
    return score
}

func simpleReturns(prices []float64) []float64 {
    if len(prices) < 2 {
        return nil
    }
    out := make([]float64, 0, len(prices)-1)
    for i := 1; i < len(prices); i++ {
        if prices[i-1] == 0 {
            out = append(out, 0)
            continue
        }
        out = append(out, (prices[i]-prices[i-1])/prices[i-1])
    }
    return out
}
