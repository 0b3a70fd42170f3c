package models

// Requests for the signal HTTP endpoints. Defined in domain for consistency and reuse.

type LatestSignalRequest struct {
	// Empty means all configured instruments.
	Instrument string `query:"instrument" json:"instrument"`
}

type SignalHistoryRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
}

type BucketsRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	N          int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=500"`
}

type MicrostructureRequest struct {
	Instrument  string `query:"instrument" json:"instrument" validate:"required"`
	LookbackSec int    `query:"lookback_sec" json:"lookback_sec" default:"120" validate:"gte=10,lte=3600"`
}

type TicksRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required"`
	// From and To accept RFC3339 or unix seconds; empty means the last 15 minutes.
	From  string `query:"from" json:"from"`
	To    string `query:"to" json:"to"`
	Limit int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}
