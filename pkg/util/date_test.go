package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	ref := time.Date(2025, 3, 7, 14, 30, 45, 0, time.UTC)

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2025-03-07T14:30:45Z", ref},
		{"rfc3339nano", "2025-03-07T14:30:45.250000000Z", ref.Add(250 * time.Millisecond)},
		{"unix seconds", strconv.FormatInt(ref.Unix(), 10), ref},
		{"unix millis", strconv.FormatInt(ref.Add(250*time.Millisecond).UnixMilli(), 10), ref.Add(250 * time.Millisecond)},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.in)
		if !ok {
			t.Errorf("%s: ParseTime(%q) rejected", tc.name, tc.in)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "yesterday", "-5", "14:30"} {
		if _, ok := ParseTime(s); ok {
			t.Errorf("ParseTime(%q) = ok, want rejection", s)
		}
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("not a time", def); !got.Equal(def) {
		t.Fatalf("bad input: got %v, want the default", got)
	}
	if got := ParseTimeDefault("2025-03-07T14:30:45Z", def); got.Equal(def) {
		t.Fatalf("valid input must not fall back to the default")
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2025, 3, 7, 14, 32, 10, 0, time.UTC)
	to := time.Date(2025, 3, 7, 14, 48, 59, 0, time.UTC)

	af, at := AlignFromTo(from, to, "1m")
	if af.Second() != 0 || at.Second() != 0 {
		t.Fatalf("expected minute alignment, got %v %v", af, at)
	}

	sf, st := AlignFromTo(from, to, "1s")
	if !sf.Equal(from) || !st.Equal(to) {
		t.Fatalf("second alignment must keep whole seconds, got %v %v", sf, st)
	}

	ff, ft := AlignFromTo(from, to, "5m")
	if ff.Minute() != 30 || ft.Minute() != 45 {
		t.Fatalf("expected five minute alignment, got %v %v", ff, ft)
	}
}
