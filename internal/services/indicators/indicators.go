// Package indicators implements windowed technical statistics as pure
// functions over finite float slices. Every function returns nil (or a
// zero scalar) when the input is shorter than its minimum window; none
// of them return errors. Rolling outputs are aligned to the END of the
// source series: out[len(out)-1] always describes the latest sample.
package indicators

import "math"

// SMA computes the simple moving average over a fixed window.
// Result length is len(values)-window+1, nil if insufficient data.
func SMA(values []float64, window int) []float64 {
    if window <= 0 || len(values) < window {
        return nil
    }
    out := make([]float64, 0, len(values)-window+1)
    sum := 0.0
    for i, v := range values {
        sum += v
        if i >= window {
            sum -= values[i-window]
        }
        if i >= window-1 {
            out = append(out, sum/float64(window))
        }
    }
    return out
}

// EMA computes the exponential moving average with alpha = 2/(span+1),
// seeded with the first value. Result has the same length as values,
// nil if len(values) < span.
func EMA(values []float64, span int) []float64 {
    if span <= 0 || len(values) < span {
        return nil
    }
    alpha := 2.0 / (float64(span) + 1.0)
    out := make([]float64, len(values))
    out[0] = values[0]
    for i := 1; i < len(values); i++ {
        out[i] = alpha*values[i] + (1-alpha)*out[i-1]
    }
    return out
}

// RSI computes the Relative Strength Index using rolling means of gains
// and losses over period. Result length is len(values)-period, nil if
// insufficient data. Degenerate windows substitute sentinels instead of
// dividing by zero: no losses and no gains (flat) -> 50, no losses -> 100.
func RSI(values []float64, period int) []float64 {
    if period <= 0 || len(values) < period+1 {
        return nil
    }
    n := len(values) - 1
    gains := make([]float64, n)
    losses := make([]float64, n)
    for i := 1; i < len(values); i++ {
        d := values[i] - values[i-1]
        if d > 0 {
            gains[i-1] = d
        } else {
            losses[i-1] = -d
        }
    }
    avgGains := SMA(gains, period)
    avgLosses := SMA(losses, period)
    out := make([]float64, 0, len(avgGains))
    for i := range avgGains {
        out = append(out, rsiValue(avgGains[i], avgLosses[i]))
    }
    return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
    if avgLoss == 0 {
        if avgGain == 0 {
            return 50
        }
        return 100
    }
    rs := avgGain / avgLoss
    v := 100 - 100/(1+rs)
    if v < 0 {
        return 0
    }
    if v > 100 {
        return 100
    }
    return v
}

// MACD computes the moving average convergence/divergence line, its
// signal line and the histogram. All three share the length of values;
// nil results if len(values) < slow.
func MACD(values []float64, fast, slow, signalSpan int) (macd, signal, hist []float64) {
    if fast <= 0 || slow <= fast || signalSpan <= 0 || len(values) < slow {
        return nil, nil, nil
    }
    emaFast := EMA(values, fast)
    emaSlow := EMA(values, slow)
    macd = make([]float64, len(values))
    for i := range values {
        macd[i] = emaFast[i] - emaSlow[i]
    }
    signal = EMA(macd, signalSpan)
    if signal == nil {
        return nil, nil, nil
    }
    hist = make([]float64, len(values))
    for i := range values {
        hist[i] = macd[i] - signal[i]
    }
    return macd, signal, hist
}

// Bollinger computes the middle band (SMA) with upper/lower bands at
// k sample standard deviations. Result length is len(values)-window+1.
func Bollinger(values []float64, window int, k float64) (upper, middle, lower []float64) {
    if window <= 1 || len(values) < window {
        return nil, nil, nil
    }
    middle = SMA(values, window)
    upper = make([]float64, len(middle))
    lower = make([]float64, len(middle))
    for i := range middle {
        sd := sampleStd(values[i:i+window], middle[i])
        upper[i] = middle[i] + k*sd
        lower[i] = middle[i] - k*sd
    }
    return upper, middle, lower
}

// Stochastic computes %K over kPeriod and %D as the dPeriod SMA of %K.
// A flat high/low range substitutes the neutral 50 instead of dividing
// by zero. Both outputs end-aligned; nil if insufficient data.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
    n := minLen(highs, lows, closes)
    if kPeriod <= 0 || dPeriod <= 0 || n < kPeriod {
        return nil, nil
    }
    k = make([]float64, 0, n-kPeriod+1)
    for i := kPeriod - 1; i < n; i++ {
        hh := highs[i-kPeriod+1]
        ll := lows[i-kPeriod+1]
        for j := i - kPeriod + 2; j <= i; j++ {
            if highs[j] > hh {
                hh = highs[j]
            }
            if lows[j] < ll {
                ll = lows[j]
            }
        }
        if hh == ll {
            k = append(k, 50)
            continue
        }
        k = append(k, 100*(closes[i]-ll)/(hh-ll))
    }
    d = SMA(k, dPeriod)
    return k, d
}

// ATR computes the average true range: the rolling mean of
// max(high-low, |high-prevClose|, |low-prevClose|). The first true range
// has no previous close and falls back to high-low. Result length is
// n-period+1, nil if insufficient data.
func ATR(highs, lows, closes []float64, period int) []float64 {
    n := minLen(highs, lows, closes)
    if period <= 0 || n < period {
        return nil
    }
    tr := make([]float64, n)
    tr[0] = highs[0] - lows[0]
    for i := 1; i < n; i++ {
        hl := highs[i] - lows[i]
        hc := math.Abs(highs[i] - closes[i-1])
        lc := math.Abs(lows[i] - closes[i-1])
        tr[i] = math.Max(hl, math.Max(hc, lc))
    }
    return SMA(tr, period)
}

// VolumeSMA is the rolling mean of volumes.
func VolumeSMA(volumes []float64, window int) []float64 {
    return SMA(volumes, window)
}

// Momentum computes values[i] - values[i-period]. Result length is
// len(values)-period, nil if insufficient data.
func Momentum(values []float64, period int) []float64 {
    if period <= 0 || len(values) <= period {
        return nil
    }
    out := make([]float64, 0, len(values)-period)
    for i := period; i < len(values); i++ {
        out = append(out, values[i]-values[i-period])
    }
    return out
}

// ReturnVolatility computes the population standard deviation of
// one-step simple returns over the trailing window. Returns 0 when
// fewer than two prices are available.
func ReturnVolatility(values []float64, window int) float64 {
    if window <= 0 || len(values) < 2 {
        return 0
    }
    returns := make([]float64, 0, len(values)-1)
    for i := 1; i < len(values); i++ {
        prev := values[i-1]
        if prev == 0 {
            returns = append(returns, 0)
            continue
        }
        returns = append(returns, (values[i]-prev)/prev)
    }
    if len(returns) > window {
        returns = returns[len(returns)-window:]
    }
    return PopulationStd(returns)
}

// Slope fits y = a + b*x by ordinary least squares over x = 0..n-1 and
// returns b. Returns 0 for fewer than two points.
func Slope(values []float64) float64 {
    n := len(values)
    if n < 2 {
        return 0
    }
    var sumX, sumY, sumXY, sumXX float64
    for i, v := range values {
        x := float64(i)
        sumX += x
        sumY += v
        sumXY += x * v
        sumXX += x * x
    }
    fn := float64(n)
    denom := fn*sumXX - sumX*sumX
    if denom == 0 {
        return 0
    }
    return (fn*sumXY - sumX*sumY) / denom
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
    if len(values) == 0 {
        return 0
    }
    sum := 0.0
    for _, v := range values {
        sum += v
    }
    return sum / float64(len(values))
}

// PopulationStd returns the population (ddof=0) standard deviation,
// 0 for an empty slice.
func PopulationStd(values []float64) float64 {
    if len(values) == 0 {
        return 0
    }
    m := Mean(values)
    var sum2 float64
    for _, v := range values {
        d := v - m
        sum2 += d * d
    }
    return math.Sqrt(sum2 / float64(len(values)))
}

func sampleStd(window []float64, mean float64) float64 {
    if len(window) < 2 {
        return 0
    }
    var sum2 float64
    for _, v := range window {
        d := v - mean
        sum2 += d * d
    }
    return math.Sqrt(sum2 / float64(len(window)-1))
}

func minLen(a, b, c []float64) int {
    n := len(a)
    if len(b) < n {
        n = len(b)
    }
    if len(c) < n {
        n = len(c)
    }
    return n
}
