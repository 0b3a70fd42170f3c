package indicators

import "sort"

// FindPeaksValleys locates local maxima and minima with a minimum
// prominence and a minimum index separation between kept extremes of
// the same kind. When extremes compete within the separation distance
// the higher (deeper) one wins. Returns nil slices when the series is
// shorter than twice the distance.
func FindPeaksValleys(values []float64, distance int, prominence float64) (peaks, valleys []int) {
    if distance < 1 || len(values) < 2*distance {
        return nil, nil
    }
    peaks = selectExtremes(values, distance, prominence)
    neg := make([]float64, len(values))
    for i, v := range values {
        neg[i] = -v
    }
    valleys = selectExtremes(neg, distance, prominence)
    return peaks, valleys
}

func selectExtremes(values []float64, distance int, prominence float64) []int {
    var candidates []int
    for i := 1; i < len(values)-1; i++ {
        if values[i] > values[i-1] && values[i] > values[i+1] {
            if peakProminence(values, i) >= prominence {
                candidates = append(candidates, i)
            }
        }
    }
    if len(candidates) == 0 {
        return nil
    }
    // Resolve the distance constraint highest-first.
    byHeight := make([]int, len(candidates))
    copy(byHeight, candidates)
    sort.Slice(byHeight, func(a, b int) bool {
        return values[byHeight[a]] > values[byHeight[b]]
    })
    removed := make(map[int]bool, len(candidates))
    for _, i := range byHeight {
        if removed[i] {
            continue
        }
        for _, j := range candidates {
            if j == i || removed[j] {
                continue
            }
            if abs(i-j) < distance {
                removed[j] = true
            }
        }
    }
    var kept []int
    for _, i := range candidates {
        if !removed[i] {
            kept = append(kept, i)
        }
    }
    return kept
}

// peakProminence measures how far the peak rises above its bases: walk
// outward on each side until a higher value (or the series edge), take
// the minimum seen on each walk, and subtract the higher of the two.
func peakProminence(values []float64, i int) float64 {
    leftBase := values[i]
    for j := i - 1; j >= 0; j-- {
        if values[j] > values[i] {
            break
        }
        if values[j] < leftBase {
            leftBase = values[j]
        }
    }
    rightBase := values[i]
    for j := i + 1; j < len(values); j++ {
        if values[j] > values[i] {
            break
        }
        if values[j] < rightBase {
            rightBase = values[j]
        }
    }
    base := leftBase
    if rightBase > base {
        base = rightBase
    }
    return values[i] - base
}

func abs(x int) int {
    if x < 0 {
        return -x
    }
    return x
}
