// Package fusion blends the coarse and fine detector outcomes of one
// instrument into a single confirmed decision.
package fusion

import (
    "fmt"
    "sync"
    "time"

    "PivotScan/internal/domain/models"
    domsvc "PivotScan/internal/domain/service"
)

type Config struct {
    CoarseWeight          float64
    FineWeight            float64
    ConfirmationThreshold float64
    HistoryRetention      time.Duration
}

func DefaultConfig() Config {
    return Config{
        CoarseWeight:          0.7,
        FineWeight:            0.3,
        ConfirmationThreshold: 0.6,
        HistoryRetention:      5 * time.Minute,
    }
}

func (c Config) validate() error {
    if c.CoarseWeight <= 0 || c.FineWeight <= 0 {
        return fmt.Errorf("fusion weights must be positive, got %v/%v", c.CoarseWeight, c.FineWeight)
    }
    if c.ConfirmationThreshold <= 0 || c.ConfirmationThreshold > 1 {
        return fmt.Errorf("confirmation threshold must be in (0,1], got %v", c.ConfirmationThreshold)
    }
    if c.HistoryRetention <= 0 {
        return fmt.Errorf("history retention must be positive, got %v", c.HistoryRetention)
    }
    return nil
}

// Fuser weights the two timeframes and confirms a direction only when
// the coarse boolean holds and the blend clears the threshold. The fine
// boolean contributes to confidence and the blend, never to the gate.
// Safe for concurrent use.
type Fuser struct {
    mu      sync.Mutex
    cfg     Config
    history map[string][]models.FusionRecord
}

func New(cfg Config) (*Fuser, error) {
    if err := cfg.validate(); err != nil {
        return nil, fmt.Errorf("fusion config: %w", err)
    }
    return &Fuser{cfg: cfg, history: make(map[string][]models.FusionRecord)}, nil
}

var _ domsvc.SignalFuser = (*Fuser)(nil)

func (f *Fuser) Fuse(instrument string, coarse, fine models.TimeframeResult, now time.Time) models.FusedSignal {
    peakStrength := coarse.Peak.Strength*f.cfg.CoarseWeight + fine.Peak.Strength*f.cfg.FineWeight
    valleyStrength := coarse.Valley.Strength*f.cfg.CoarseWeight + fine.Valley.Strength*f.cfg.FineWeight

    peakConfirmed := coarse.Peak.Signal && peakStrength >= f.cfg.ConfirmationThreshold
    valleyConfirmed := coarse.Valley.Signal && valleyStrength >= f.cfg.ConfirmationThreshold

    f.record(instrument, now, peakConfirmed, valleyConfirmed)

    return models.FusedSignal{
        Instrument: instrument,
        Timestamp:  now,
        Peak:       models.Detection{Signal: peakConfirmed, Strength: peakStrength},
        Valley:     models.Detection{Signal: valleyConfirmed, Strength: valleyStrength},
        Confidence: confidence(coarse, fine),
        Fused:      true,
        Coarse:     coarse,
        Fine:       fine,
    }
}

// confidence grades cross-timeframe agreement: both direction booleans
// matching is high, one is medium, none is low.
func confidence(coarse, fine models.TimeframeResult) models.Confidence {
    peakAgree := coarse.Peak.Signal == fine.Peak.Signal
    valleyAgree := coarse.Valley.Signal == fine.Valley.Signal
    switch {
    case peakAgree && valleyAgree:
        return models.ConfidenceHigh
    case peakAgree || valleyAgree:
        return models.ConfidenceMedium
    default:
        return models.ConfidenceLow
    }
}

func (f *Fuser) record(instrument string, now time.Time, peak, valley bool) {
    f.mu.Lock()
    defer f.mu.Unlock()

    cutoff := now.Add(-f.cfg.HistoryRetention)
    kept := f.history[instrument][:0]
    for _, r := range f.history[instrument] {
        if r.Timestamp.After(cutoff) {
            kept = append(kept, r)
        }
    }
    f.history[instrument] = append(kept, models.FusionRecord{
        Timestamp:       now,
        PeakConfirmed:   peak,
        ValleyConfirmed: valley,
    })
}

// History returns a copy of the retained fusion records, oldest first.
func (f *Fuser) History(instrument string) []models.FusionRecord {
    f.mu.Lock()
    defer f.mu.Unlock()

    records := f.history[instrument]
    out := make([]models.FusionRecord, len(records))
    copy(out, records)
    return out
}
