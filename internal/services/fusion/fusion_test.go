package fusion

import (
    "math"
    "testing"
    "time"

    "PivotScan/internal/domain/models"
)

var fuseBase = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func mustFuser(t *testing.T) *Fuser {
    t.Helper()
    f, err := New(DefaultConfig())
    if err != nil {
        t.Fatalf("new fuser: %v", err)
    }
    return f
}

func result(peak, valley models.Detection) models.TimeframeResult {
    return models.TimeframeResult{Peak: peak, Valley: valley}
}

func TestNewFuserValidatesConfig(t *testing.T) {
    bad := DefaultConfig()
    bad.CoarseWeight = 0
    if _, err := New(bad); err == nil {
        t.Fatal("expected error for zero coarse weight")
    }
    bad = DefaultConfig()
    bad.ConfirmationThreshold = 1.5
    if _, err := New(bad); err == nil {
        t.Fatal("expected error for threshold above 1")
    }
    bad = DefaultConfig()
    bad.HistoryRetention = 0
    if _, err := New(bad); err == nil {
        t.Fatal("expected error for zero retention")
    }
}

func TestFuseBlendsStrengths(t *testing.T) {
    f := mustFuser(t)
    coarse := result(models.Detection{Signal: true, Strength: 0.8}, models.Detection{})
    fine := result(models.Detection{Signal: false, Strength: 0.2}, models.Detection{})

    out := f.Fuse("AAA", coarse, fine, fuseBase)
    want := 0.8*0.7 + 0.2*0.3
    if math.Abs(out.Peak.Strength-want) > 1e-9 {
        t.Fatalf("fused peak strength = %v, want %v", out.Peak.Strength, want)
    }
    if !out.Peak.Signal {
        t.Fatalf("expected confirmed peak at %v", out.Peak.Strength)
    }
    if !out.Fused {
        t.Fatal("expected fused flag set")
    }
}

func TestFuseRequiresCoarseBoolean(t *testing.T) {
    f := mustFuser(t)
    coarse := result(models.Detection{Signal: false, Strength: 1.0}, models.Detection{})
    fine := result(models.Detection{Signal: true, Strength: 0.8}, models.Detection{})

    out := f.Fuse("AAA", coarse, fine, fuseBase)
    if out.Peak.Signal {
        t.Fatalf("peak confirmed without coarse boolean, strength %v", out.Peak.Strength)
    }
    if out.Peak.Strength < 0.9 {
        t.Fatalf("fused strength = %v, want the blend preserved", out.Peak.Strength)
    }
}

func TestFuseRequiresThreshold(t *testing.T) {
    f := mustFuser(t)
    coarse := result(models.Detection{Signal: true, Strength: 0.6}, models.Detection{})
    fine := result(models.Detection{Signal: false, Strength: 0}, models.Detection{})

    out := f.Fuse("AAA", coarse, fine, fuseBase)
    if out.Peak.Signal {
        t.Fatalf("peak confirmed below threshold, strength %v", out.Peak.Strength)
    }
}

func TestConfidenceGrades(t *testing.T) {
    f := mustFuser(t)
    cases := []struct {
        name           string
        coarse, fine   models.TimeframeResult
        wantConfidence models.Confidence
    }{
        {
            name:           "agree on both",
            coarse:         result(models.Detection{Signal: true, Strength: 0.8}, models.Detection{}),
            fine:           result(models.Detection{Signal: true, Strength: 0.7}, models.Detection{}),
            wantConfidence: models.ConfidenceHigh,
        },
        {
            name:           "agree on both while quiet",
            coarse:         result(models.Detection{}, models.Detection{}),
            fine:           result(models.Detection{}, models.Detection{}),
            wantConfidence: models.ConfidenceHigh,
        },
        {
            name:           "agree on one",
            coarse:         result(models.Detection{Signal: true, Strength: 0.8}, models.Detection{}),
            fine:           result(models.Detection{}, models.Detection{}),
            wantConfidence: models.ConfidenceMedium,
        },
        {
            name:           "disagree on both",
            coarse:         result(models.Detection{Signal: true, Strength: 0.8}, models.Detection{Signal: false, Strength: 0}),
            fine:           result(models.Detection{Signal: false, Strength: 0}, models.Detection{Signal: true, Strength: 0.9}),
            wantConfidence: models.ConfidenceLow,
        },
    }
    for _, tc := range cases {
        out := f.Fuse("AAA", tc.coarse, tc.fine, fuseBase)
        if out.Confidence != tc.wantConfidence {
            t.Fatalf("%s: confidence = %v, want %v", tc.name, out.Confidence, tc.wantConfidence)
        }
    }
}

func TestHistoryPrunedByRetention(t *testing.T) {
    f := mustFuser(t)
    coarse := result(models.Detection{Signal: true, Strength: 0.9}, models.Detection{})
    fine := result(models.Detection{Signal: true, Strength: 0.9}, models.Detection{})

    f.Fuse("AAA", coarse, fine, fuseBase)
    f.Fuse("AAA", coarse, fine, fuseBase.Add(2*time.Minute))
    f.Fuse("AAA", coarse, fine, fuseBase.Add(6*time.Minute))

    got := f.History("AAA")
    if len(got) != 2 {
        t.Fatalf("history length = %d, want 2 after pruning", len(got))
    }
    if !got[0].Timestamp.Equal(fuseBase.Add(2 * time.Minute)) {
        t.Fatalf("oldest kept record at %v, want the 2-minute mark", got[0].Timestamp)
    }
    if !got[0].PeakConfirmed {
        t.Fatal("expected confirmed peak recorded in history")
    }
}

func TestHistoryPerInstrument(t *testing.T) {
    f := mustFuser(t)
    coarse := result(models.Detection{Signal: true, Strength: 0.9}, models.Detection{})
    fine := result(models.Detection{}, models.Detection{})

    f.Fuse("AAA", coarse, fine, fuseBase)
    if got := f.History("BBB"); len(got) != 0 {
        t.Fatalf("unexpected history for other instrument: %v", got)
    }
}
