package repository

// IsValidTimeframe reports whether tf names a bar resolution the
// storage layer can aggregate to.
func IsValidTimeframe(tf Timeframe) bool {
	return tf == TF1s || tf == TF1m || tf == TF5m
}

// DefaultTimeframe is the resolution the coarse path evaluates on when
// the configuration names none.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe maps a configured resolution string onto a
// supported Timeframe. Empty or unrecognized values fall back to the
// default.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
