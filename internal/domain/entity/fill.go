package entity

import "time"

// Fill is an execution report from the exchange (spec §4.7, GLOSSARY).
type Fill struct {
	Symbol          string
	Side            FillSide
	Quantity        float64
	Price           float64
	ExternalOrderID string
	ClientOrderID   string
	Timestamp       time.Time
	BotID           int64
}

// PositionSide maps the wire-level fill side to the position side it would
// open (spec §4.7 step 2: Bid -> LONG, Ask -> SHORT).
func (f *Fill) PositionSide() PositionSide {
	if f.Side == FillSideBid {
		return PositionLong
	}
	return PositionShort
}
