package entity

import "time"

// TrailingState is the per-(botId, symbol) armed trailing-stop record
// (spec §3, §4.8).
type TrailingState struct {
	BotID  int64
	Symbol string

	ActiveStopOrderID string // empty when no stop is currently armed

	HighFavorablePrice float64 // highest price reached for a LONG, lowest for a SHORT
	LastTriggerPrice   float64

	ArmedAt   time.Time
	UpdatedAt time.Time
}

// IsArmed reports whether a reduce-only stop is believed to be live.
func (t *TrailingState) IsArmed() bool {
	return t.ActiveStopOrderID != ""
}
