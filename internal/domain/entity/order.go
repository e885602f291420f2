package entity

import (
	"strconv"
	"time"
)

// Side represents order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// FillSide is the side carried on an exchange fill report, distinct from
// Side because exchanges speak Bid/Ask on the wire (spec §4.7).
type FillSide string

const (
	FillSideBid FillSide = "Bid"
	FillSideAsk FillSide = "Ask"
)

// OrderType enumerates the order kinds the core places or tracks (spec §3).
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeReduceOnlyStop  OrderType = "REDUCE_ONLY_STOP"
	OrderTypeReduceOnlyLimit OrderType = "REDUCE_ONLY_LIMIT"
)

// IsReduceOnly reports whether this order type can only reduce a position.
func (t OrderType) IsReduceOnly() bool {
	return t == OrderTypeReduceOnlyStop || t == OrderTypeReduceOnlyLimit ||
		t == OrderTypeStopLoss || t == OrderTypeTakeProfit
}

// IsEntry reports whether this order type is an entry-side order that
// PositionTracker's sweep mode should consider (spec §4.7, TrackBotPositions).
func (t OrderType) IsEntry() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// OrderStatus is the lifecycle of a local Order record (spec §3).
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// CloseType records whether a close was driven by reconciliation/strategy
// logic (AUTO) or by an operator action surfaced through the dashboard
// (MANUAL) — spec §3.
type CloseType string

const (
	CloseTypeAuto   CloseType = "AUTO"
	CloseTypeManual CloseType = "MANUAL"
)

// Order is the local durable execution record keyed by ExternalOrderID once
// the exchange has assigned one (spec §3).
type Order struct {
	ExternalOrderID string
	BotID           int64
	ClientOrderID   string // "${botId}_${botClientOrderId}_${orderCounter}"
	Symbol          string
	Side            Side
	OrderType       OrderType
	Quantity        float64
	Price           float64
	Status          OrderStatus
	Timestamp       time.Time
	ExchangeCreatedAt time.Time

	ClosePrice    float64
	CloseQuantity float64
	CloseTime     time.Time
	CloseType     CloseType
	PnL           float64
	PnLPct        float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFilled returns true if the order reached FILLED or CLOSED.
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusClosed
}

// IsOpen returns true if the order is still live on the exchange's books
// from the core's point of view (spec §4.6: "not closed locally while still
// open on the exchange").
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusFilled
}

// OwnerBotClientPrefix returns the "${botId}_${botClientOrderId}_" prefix
// used by PositionTracker's ownership filter (spec §4.7).
func OwnerBotClientPrefix(botID int64, botClientOrderID int64) string {
	return strconv.FormatInt(botID, 10) + "_" + strconv.FormatInt(botClientOrderID, 10) + "_"
}
