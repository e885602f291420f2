// Package positiontracker derives per-(botId, symbol) Position rows from
// exchange fill reports and maintains realized/unrealized P&L (spec §4.7).
package positiontracker

import (
	"context"
	"fmt"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/orderservice"
)

// Tracker implements spec §4.7's OnFill pipeline and the sweep-mode stats.
type Tracker struct {
	positions repository.PositionRepository
	orders    *orderservice.Service
	configs   *configstore.Store
	log       *logger.Logger
}

func New(positions repository.PositionRepository, orders *orderservice.Service, configs *configstore.Store, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Default()
	}
	return &Tracker{positions: positions, orders: orders, configs: configs, log: log.WithComponent("positiontracker")}
}

// OnFill applies spec §4.7's five-step algorithm to one exchange fill.
// Fills whose ClientOrderID does not carry the given bot's ownership prefix
// are ignored (spec §4.7 step 0: ownership filter).
func (t *Tracker) OnFill(ctx context.Context, cfg *entity.BotConfig, fill *entity.Fill) error {
	prefix := entity.OwnerBotClientPrefix(cfg.BotID, cfg.BotClientOrderID)
	if !orderservice.OwnerPrefix(fill.ClientOrderID, prefix) {
		return nil
	}

	// Step 1: order side-effect. A fill always confirms or fills the local
	// order record it reports against.
	if err := t.orders.MarkFilled(ctx, fill.ExternalOrderID, fill.Timestamp); err != nil && !xerr.Is(err, xerr.KindNotFound) {
		t.log.Error("OnFill: MarkFilled(%s) failed: %v", fill.ExternalOrderID, err)
	}

	// Step 2: positionSide from fill side.
	fillSide := fill.PositionSide()

	// Step 3: load-or-create Position.
	pos, err := t.positions.GetOpen(ctx, cfg.BotID, fill.Symbol)
	if err != nil {
		return xerr.Transient("OnFill", err)
	}

	if pos == nil {
		pos = &entity.Position{
			BotID:           cfg.BotID,
			Symbol:          fill.Symbol,
			Side:            fillSide,
			EntryPrice:      fill.Price,
			InitialQuantity: fill.Quantity,
			CurrentQuantity: fill.Quantity,
			Status:          entity.PositionOpen,
		}
		return t.positions.Upsert(ctx, pos)
	}

	if pos.Side == fillSide {
		// Step 4: same-side blend — weighted-average entry price, quantity grows.
		totalQty := pos.CurrentQuantity + fill.Quantity
		pos.EntryPrice = (pos.EntryPrice*pos.CurrentQuantity + fill.Price*fill.Quantity) / totalQty
		pos.InitialQuantity += fill.Quantity
		pos.CurrentQuantity = totalQty
		pos.Status = entity.PositionOpen
		return t.positions.Upsert(ctx, pos)
	}

	// Step 5: opposite-side close or partial close.
	closeQty := fill.Quantity
	if closeQty > pos.CurrentQuantity {
		closeQty = pos.CurrentQuantity
	}

	diff := fill.Price - pos.EntryPrice
	if pos.Side == entity.PositionShort {
		diff = -diff
	}
	realizedPnL := diff * closeQty
	pos.PnL += realizedPnL
	pos.CurrentQuantity -= closeQty

	if pos.CurrentQuantity <= 0 {
		pos.Status = entity.PositionClosed
		pos.CurrentQuantity = 0
	} else {
		pos.Status = entity.PositionPartiallyClose
	}

	if err := t.positions.Upsert(ctx, pos); err != nil {
		return xerr.Transient("OnFill", err)
	}

	notional := pos.EntryPrice * closeQty
	pnlPct := 0.0
	if notional != 0 {
		pnlPct = realizedPnL / notional * 100
	}
	if err := t.orders.MarkClosed(ctx, fill.ExternalOrderID, fill.Price, closeQty, fill.Timestamp, entity.CloseTypeAuto, realizedPnL, pnlPct); err != nil && !xerr.Is(err, xerr.KindNotFound) {
		t.log.Error("OnFill: MarkClosed(%s) failed: %v", fill.ExternalOrderID, err)
	}

	// A fill larger than the existing position flips side: the remainder
	// opens a fresh position on the fill's side (spec §4.7, flip case).
	remainder := fill.Quantity - closeQty
	if remainder > 0 {
		flipped := &entity.Position{
			BotID:           cfg.BotID,
			Symbol:          fill.Symbol,
			Side:            fillSide,
			EntryPrice:      fill.Price,
			InitialQuantity: remainder,
			CurrentQuantity: remainder,
			Status:          entity.PositionOpen,
		}
		return t.positions.Upsert(ctx, flipped)
	}

	return nil
}

// GetBotOpenPositions lists currently-open positions for a bot (spec §4.7).
func (t *Tracker) GetBotOpenPositions(ctx context.Context, botID int64) ([]*entity.Position, error) {
	return t.positions.ListOpenForBot(ctx, botID)
}

// PnLStats is the sweep-mode aggregate spec §4.7 computes from a bot's
// closed position history.
type PnLStats struct {
	TotalTrades   int
	WinRate       float64
	ProfitFactor  float64
	AvgPnL        float64
	MaxWin        float64
	MaxLoss       float64
	TotalPnL      float64
	MaxDrawdown   float64
	TotalVolume   float64
}

// GetBotPnLStats computes PnLStats over botID's full position history.
func (t *Tracker) GetBotPnLStats(ctx context.Context, botID int64) (*PnLStats, error) {
	positions, err := t.positions.ListForBot(ctx, botID, 0)
	if err != nil {
		return nil, xerr.Transient("GetBotPnLStats", err)
	}
	return computeStats(positions), nil
}

func computeStats(positions []*entity.Position) *PnLStats {
	stats := &PnLStats{}
	var grossWin, grossLoss, runningPnL, peak, maxDD float64

	for _, p := range positions {
		if p.Status != entity.PositionClosed {
			continue
		}
		stats.TotalTrades++
		stats.TotalPnL += p.PnL
		stats.TotalVolume += p.InitialQuantity * p.EntryPrice

		if p.PnL > 0 {
			grossWin += p.PnL
			if p.PnL > stats.MaxWin {
				stats.MaxWin = p.PnL
			}
		} else {
			grossLoss += -p.PnL
			if p.PnL < stats.MaxLoss {
				stats.MaxLoss = p.PnL
			}
		}

		runningPnL += p.PnL
		if runningPnL > peak {
			peak = runningPnL
		}
		if drawdown := peak - runningPnL; drawdown > maxDD {
			maxDD = drawdown
		}
	}

	if stats.TotalTrades > 0 {
		wins := 0
		for _, p := range positions {
			if p.Status == entity.PositionClosed && p.PnL > 0 {
				wins++
			}
		}
		stats.WinRate = float64(wins) / float64(stats.TotalTrades) * 100
		stats.AvgPnL = stats.TotalPnL / float64(stats.TotalTrades)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		stats.ProfitFactor = 999
	}
	stats.MaxDrawdown = maxDD

	return stats
}

// TrackBotPositions reconciles botID's open Position rows against exchange
// position state, a best-effort sweep mode spec §4.7 offers alongside the
// fill-driven path. It closes tracked rows whose symbol the exchange reports
// flat; it creates no rows for untracked symbols and does not persist the
// mark-price PnL it computes for rows that are still open.
func (t *Tracker) TrackBotPositions(ctx context.Context, cfg *entity.BotConfig, exchangePositions map[string]float64, markPrices map[string]float64) error {
	open, err := t.positions.ListOpenForBot(ctx, cfg.BotID)
	if err != nil {
		return xerr.Transient("TrackBotPositions", err)
	}
	bySymbol := make(map[string]*entity.Position, len(open))
	for _, p := range open {
		bySymbol[p.Symbol] = p
	}

	for symbol, netQty := range exchangePositions {
		pos, tracked := bySymbol[symbol]
		if netQty == 0 {
			if tracked {
				pos.Status = entity.PositionClosed
				pos.CurrentQuantity = 0
				if err := t.positions.Upsert(ctx, pos); err != nil {
					return fmt.Errorf("TrackBotPositions: close %s: %w", symbol, err)
				}
			}
			continue
		}
		if !tracked {
			continue
		}
		mark := markPrices[symbol]
		pos.PnL = pos.UnrealizedPnL(mark)
	}
	return nil
}
