package service

import (
	"context"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

// Signal represents a trading signal emitted by a Strategy.
type Signal struct {
	Symbol   string
	Side     entity.Side
	Price    float64
	Quantity float64
	Reason   string
}

// MarketState is the market/account context handed to a Strategy on each
// decision tick. ATR is populated when available so the hybrid-ATR trailing
// mode (spec §4.8) can consume it without the core depending on any one
// indicator implementation.
type MarketState struct {
	Ticker       *entity.Ticker
	OrderBook    *entity.OrderBook
	Candles      []*entity.Candle
	Position     *entity.Position
	Orders       []*entity.Order
	MarketSignal *entity.MarketSignal
	ATR          float64
}

// Decision is the outcome of one Strategy.Analyze call — the core never
// inspects more than its Signals (spec §1: "the core calls analyze(...) and
// consumes a decision").
type Decision struct {
	Signals []*Signal
}

// Strategy is the external collaborator boundary (spec §1, §4.4). The core
// never reasons about a strategy's internals, only this contract.
type Strategy interface {
	// Name returns the strategy name, matching BotConfig.StrategyName.
	Name() string

	// Init initializes strategy with config.
	Init(ctx context.Context, config map[string]interface{}) error

	// Analyze is invoked once per decision tick (spec §4.4) and returns the
	// decision for that tick.
	Analyze(ctx context.Context, timeframe entity.Timeframe, state *MarketState) (*Decision, error)

	// OnOrderUpdate is called when order status changes.
	OnOrderUpdate(ctx context.Context, order *entity.Order) error

	// OnPositionUpdate is called when position changes.
	OnPositionUpdate(ctx context.Context, position *entity.Position) error

	// Stop stops the strategy.
	Stop(ctx context.Context) error
}

// StrategyFactory creates strategy instances by name (spec §3:
// strategyName is "enum over the set registered by the Strategy
// collaborator").
type StrategyFactory interface {
	Create(name string) (Strategy, error)
	List() []string
}

// MarketSignalSource supplies the aggregated derivatives/whale/social/macro
// signal a strategy like ALPHA_FLOW consumes (spec §1: upstream data
// sources are external collaborators; the core only threads the result
// through MarketState). Optional — BotRunner leaves MarketState.MarketSignal
// nil when no source is configured, and DEFAULT never looks at it.
type MarketSignalSource interface {
	GetMarketSignal(ctx context.Context, symbol string) (*entity.MarketSignal, error)
}
