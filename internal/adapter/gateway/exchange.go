package gateway

import (
	"context"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

// Credentials is the opaque key pair passed explicitly to every
// ExchangeClient call (spec §4.2: "no ambient key").
type Credentials struct {
	APIKey    string
	APISecret string
}

// MarketType distinguishes perpetual futures from spot where the exchange's
// endpoints are shared across both (spec §4.2 GetOpenOrders/GetFillHistory).
type MarketType string

const (
	MarketTypePerp MarketType = "PERP"
	MarketTypeSpot MarketType = "SPOT"
)

// OrderPayload is the opaque request body for PlaceOrder (spec §6: payload
// shapes are treated as opaque JSON by the core beyond the named fields).
type OrderPayload struct {
	Symbol      string
	Side        entity.Side
	OrderType   entity.OrderType
	Quantity    float64
	Price       float64
	ReduceOnly  bool
	PostOnly    bool
	TriggerPrice float64
	ClientOrderID string
}

// PlacedOrder is what the exchange hands back once a PlaceOrder call is
// accepted (spec §4.6 ConfirmAccepted consumes exactly these fields).
type PlacedOrder struct {
	ExternalOrderID string
	ClientOrderID   string
	ExchangeCreatedAt time.Time
}

// Account is the authenticated balances/limits view (spec §4.2 GetAccount).
type Account struct {
	Balances map[string]float64
	Leverage float64
	FeeRate  float64
}

// Collateral is the authenticated collateral view (spec §4.2 GetCollateral).
type Collateral struct {
	TotalCollateral float64
	AvailableMargin float64
}

// ExchangePosition mirrors the exchange's wire-level position shape
// (spec §6: "netQuantity", "avgEntryPrice").
type ExchangePosition struct {
	Symbol        string
	NetQuantity   float64
	AvgEntryPrice float64
	MarkPrice     float64
}

// FillRecord mirrors one exchange fill history entry (spec §4.2 GetFillHistory,
// feeds into entity.Fill by the caller).
type FillRecord struct {
	Symbol          string
	Side            entity.FillSide
	Quantity        float64
	Price           float64
	ExternalOrderID string
	ClientOrderID   string
	Timestamp       time.Time
}

// ExchangeClient is the authenticated request layer contract (spec §4.2).
// All methods are safe under concurrent calls; all authenticated methods
// take explicit Credentials rather than reading ambient state.
type ExchangeClient interface {
	GetMarkets(ctx context.Context) ([]*entity.Ticker, error)
	GetTickers(ctx context.Context, window time.Duration) ([]*entity.Ticker, error)
	GetKlines(ctx context.Context, symbol string, interval entity.Timeframe, limit int) ([]*entity.Candle, error)

	GetAccount(ctx context.Context, creds Credentials) (*Account, error)
	GetCollateral(ctx context.Context, creds Credentials) (*Collateral, error)

	GetOpenOrders(ctx context.Context, creds Credentials, symbol string, marketType MarketType) ([]*entity.Order, error)
	GetOpenPositions(ctx context.Context, creds Credentials) ([]*ExchangePosition, error)
	GetPositionsCached(ctx context.Context, creds Credentials) ([]*ExchangePosition, error)

	GetFillHistory(ctx context.Context, creds Credentials, symbol string, from, to time.Time, limit int, marketType MarketType) ([]*FillRecord, error)

	PlaceOrder(ctx context.Context, creds Credentials, payload OrderPayload) (*PlacedOrder, error)
	CancelOrder(ctx context.Context, creds Credentials, symbol, orderID string) error

	// ForceReset drops any coalesced in-flight reads so a fresh bot cycle does
	// not observe a stale waiter (spec §4.2, §9).
	ForceReset()
}
