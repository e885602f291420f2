// Package trailingstop implements the per-(botId, symbol) trailing-stop
// engine, including the hybrid-ATR mode (spec §4.8).
package trailingstop

import (
	"context"
	"fmt"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

// Engine drives the arm/trail/cleanup cycle for one bot's open positions.
type Engine struct {
	trailing repository.TrailingRepository
	exchange gateway.ExchangeClient
	log      *logger.Logger
}

func New(trailing repository.TrailingRepository, exchange gateway.ExchangeClient, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{trailing: trailing, exchange: exchange, log: log.WithComponent("trailingstop")}
}

// Cycle runs one arm/trail pass for a single open position, given the
// current mark price and (if available) a rolling ATR (spec §4.8).
func (e *Engine) Cycle(ctx context.Context, cfg *entity.BotConfig, pos *entity.Position, markPrice, atr float64) error {
	if !cfg.EnableTrailing || !pos.IsOpen() {
		return nil
	}
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}

	state, err := e.trailing.Get(ctx, cfg.BotID, pos.Symbol)
	if err != nil {
		return xerr.Transient("Cycle", err)
	}
	if state == nil {
		state = &entity.TrailingState{BotID: cfg.BotID, Symbol: pos.Symbol}
	}

	if !state.IsArmed() {
		activationPct := cfg.EffectiveTrailingActivationPct()
		if pos.UnrealizedPnLPct(markPrice) < activationPct {
			return nil
		}
		return e.arm(ctx, cfg, creds, pos, state, markPrice, atr)
	}

	return e.trail(ctx, cfg, creds, pos, state, markPrice, atr)
}

func (e *Engine) arm(ctx context.Context, cfg *entity.BotConfig, creds gateway.Credentials, pos *entity.Position, state *entity.TrailingState, markPrice, atr float64) error {
	stopPrice := e.stopPriceFor(cfg, pos, markPrice, atr, true)

	placed, err := e.placeStop(ctx, creds, pos, stopPrice)
	if err != nil {
		return err
	}

	state.ActiveStopOrderID = placed.ExternalOrderID
	state.HighFavorablePrice = markPrice
	state.LastTriggerPrice = stopPrice
	state.ArmedAt = time.Now()

	if err := e.trailing.Upsert(ctx, state); err != nil {
		return xerr.Transient("arm", err)
	}
	e.log.Info("armed trailing stop bot=%d symbol=%s stop=%.6f", cfg.BotID, pos.Symbol, stopPrice)
	return nil
}

func (e *Engine) trail(ctx context.Context, cfg *entity.BotConfig, creds gateway.Credentials, pos *entity.Position, state *entity.TrailingState, markPrice, atr float64) error {
	progressed := (pos.Side == entity.PositionLong && markPrice > state.HighFavorablePrice) ||
		(pos.Side == entity.PositionShort && markPrice < state.HighFavorablePrice)
	if !progressed {
		return nil
	}

	newStop := e.stopPriceFor(cfg, pos, markPrice, atr, false)

	if state.ActiveStopOrderID != "" {
		if err := e.cancelIfOpen(ctx, creds, pos.Symbol, state.ActiveStopOrderID); err != nil {
			return err
		}
	}

	placed, err := e.placeStop(ctx, creds, pos, newStop)
	if err != nil {
		return err
	}

	state.ActiveStopOrderID = placed.ExternalOrderID
	state.HighFavorablePrice = markPrice
	state.LastTriggerPrice = newStop

	if err := e.trailing.Upsert(ctx, state); err != nil {
		return xerr.Transient("trail", err)
	}
	e.log.Info("updated trailing stop bot=%d symbol=%s stop=%.6f", cfg.BotID, pos.Symbol, newStop)
	return nil
}

// stopPriceFor computes the reduce-only stop trigger, using the hybrid-ATR
// distance when enabled and the ATR input is available, else the percentage
// distance (spec §4.8).
func (e *Engine) stopPriceFor(cfg *entity.BotConfig, pos *entity.Position, markPrice, atr float64, initial bool) float64 {
	if cfg.EnableHybridStopStrategy && atr > 0 {
		multiplier := cfg.TrailingStopAtrMultiplier
		if initial {
			multiplier = cfg.InitialStopAtrMultiplier
		}
		distance := atr * multiplier
		if pos.Side == entity.PositionLong {
			return markPrice - distance
		}
		return markPrice + distance
	}

	distancePct := cfg.TrailingStopDistancePct
	if pos.Side == entity.PositionLong {
		return markPrice * (1 - distancePct/100)
	}
	return markPrice * (1 + distancePct/100)
}

func (e *Engine) placeStop(ctx context.Context, creds gateway.Credentials, pos *entity.Position, stopPrice float64) (*gateway.PlacedOrder, error) {
	side := entity.SideSell
	if pos.Side == entity.PositionShort {
		side = entity.SideBuy
	}
	payload := gateway.OrderPayload{
		Symbol:       pos.Symbol,
		Side:         side,
		OrderType:    entity.OrderTypeReduceOnlyStop,
		Quantity:     pos.CurrentQuantity,
		TriggerPrice: stopPrice,
		ReduceOnly:   true,
	}
	placed, err := e.exchange.PlaceOrder(ctx, creds, payload)
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (e *Engine) cancelIfOpen(ctx context.Context, creds gateway.Credentials, symbol, externalOrderID string) error {
	if err := e.exchange.CancelOrder(ctx, creds, symbol, externalOrderID); err != nil {
		if xerr.Is(err, xerr.KindNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Sync reconciles every armed TrailingState for a bot against the exchange's
// real open reduce-only stop orders (spec §4.5 trailingSync, §4.8): when an
// armed state's symbol still has an open position but no longer has a
// matching open reduce-only order, Sync attempts to place a replacement
// using the configured trailing distance; if that placement fails,
// ActiveStopOrderID is cleared rather than left pointing at a dead order.
// ATR is not refetched here (trailingSync has no candle fetch of its own),
// so the hybrid-ATR distance falls back to the percentage distance.
func (e *Engine) Sync(ctx context.Context, cfg *entity.BotConfig, positions []*entity.Position, markPrices map[string]float64) error {
	if !cfg.EnableTrailing {
		return nil
	}
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}

	openOrders, err := e.exchange.GetOpenOrders(ctx, creds, "", gateway.MarketTypePerp)
	if err != nil {
		return err
	}
	stopOrderBySymbol := make(map[string]string, len(openOrders))
	for _, o := range openOrders {
		if o.OrderType.IsReduceOnly() {
			stopOrderBySymbol[o.Symbol] = o.ExternalOrderID
		}
	}

	openPositionBySymbol := make(map[string]*entity.Position, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			openPositionBySymbol[p.Symbol] = p
		}
	}

	states, err := e.trailing.ListForBot(ctx, cfg.BotID)
	if err != nil {
		return xerr.Transient("Sync", err)
	}

	for _, state := range states {
		if !state.IsArmed() {
			continue
		}
		pos, hasPosition := openPositionBySymbol[state.Symbol]
		if !hasPosition {
			continue // CleanOrphanedTrailingStates handles a closed position.
		}
		if externalID, ok := stopOrderBySymbol[state.Symbol]; ok && externalID == state.ActiveStopOrderID {
			continue // already in sync
		}

		markPrice := markPrices[state.Symbol]
		stopPrice := e.stopPriceFor(cfg, pos, markPrice, 0, false)

		placed, err := e.placeStop(ctx, creds, pos, stopPrice)
		if err != nil {
			e.log.Error("trailingSync: recreate stop for bot=%d symbol=%s failed: %v", cfg.BotID, state.Symbol, err)
			state.ActiveStopOrderID = ""
			if uerr := e.trailing.Upsert(ctx, state); uerr != nil {
				return xerr.Transient("Sync", uerr)
			}
			continue
		}

		state.ActiveStopOrderID = placed.ExternalOrderID
		state.HighFavorablePrice = markPrice
		state.LastTriggerPrice = stopPrice
		if err := e.trailing.Upsert(ctx, state); err != nil {
			return xerr.Transient("Sync", err)
		}
		e.log.Info("trailingSync: recreated stop bot=%d symbol=%s stop=%.6f", cfg.BotID, state.Symbol, stopPrice)
	}
	return nil
}

// CleanOrphanedTrailingStates removes TrailingState rows whose symbol no
// longer has an open position for botId on the exchange (spec §4.8).
func (e *Engine) CleanOrphanedTrailingStates(ctx context.Context, cfg *entity.BotConfig) (int, error) {
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}

	positions, err := e.exchange.GetOpenPositions(ctx, creds)
	if err != nil {
		return 0, err
	}
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		if p.NetQuantity != 0 {
			open[p.Symbol] = true
		}
	}

	states, err := e.trailing.ListForBot(ctx, cfg.BotID)
	if err != nil {
		return 0, xerr.Transient("CleanOrphanedTrailingStates", err)
	}

	removed := 0
	for _, s := range states {
		if open[s.Symbol] {
			continue
		}
		if err := e.trailing.Delete(ctx, cfg.BotID, s.Symbol); err != nil {
			return removed, fmt.Errorf("CleanOrphanedTrailingStates: delete %s: %w", s.Symbol, err)
		}
		removed++
	}
	return removed, nil
}
