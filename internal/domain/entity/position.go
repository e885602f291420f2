package entity

import "time"

// PositionSide is LONG or SHORT, derived from the fill side that opened it
// (spec §4.7: Bid -> LONG, Ask -> SHORT).
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionStatus tracks how much of the position remains open (spec §3).
type PositionStatus string

const (
	PositionOpen           PositionStatus = "OPEN"
	PositionPartiallyClose PositionStatus = "PARTIALLY_CLOSED"
	PositionClosed         PositionStatus = "CLOSED"
)

// Position is the derived per-(botId, symbol) open interval (spec §3).
type Position struct {
	ID               int64
	BotID            int64
	Symbol           string
	Side             PositionSide
	EntryPrice       float64
	InitialQuantity  float64
	CurrentQuantity  float64
	PnL              float64
	Status           PositionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOpen reports whether the position still carries size.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen || p.Status == PositionPartiallyClose
}

// SignedQuantity returns CurrentQuantity negated for SHORT positions, for
// collaborators (e.g. strategies) that reason about position size as a
// signed long/short quantity rather than side+magnitude.
func (p *Position) SignedQuantity() float64 {
	if p.Side == PositionShort {
		return -p.CurrentQuantity
	}
	return p.CurrentQuantity
}

// Value returns notional position value at a given mark price.
func (p *Position) Value(markPrice float64) float64 {
	return p.CurrentQuantity * markPrice
}

// UnrealizedPnL returns the mark-to-market PnL on the remaining quantity.
func (p *Position) UnrealizedPnL(markPrice float64) float64 {
	diff := markPrice - p.EntryPrice
	if p.Side == PositionShort {
		diff = -diff
	}
	return diff * p.CurrentQuantity
}

// UnrealizedPnLPct returns UnrealizedPnL as a percentage of entry notional.
func (p *Position) UnrealizedPnLPct(markPrice float64) float64 {
	notional := p.EntryPrice * p.CurrentQuantity
	if notional == 0 {
		return 0
	}
	return p.UnrealizedPnL(markPrice) / notional * 100
}
