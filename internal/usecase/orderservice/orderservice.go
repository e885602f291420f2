// Package orderservice is the local durable order ledger plus reconciliation
// with the exchange (spec §4.6).
package orderservice

import (
	"context"
	"strings"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/metrics"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
)

// ghostTTL is the age at which an unconfirmed PENDING order is presumed
// abandoned by the exchange (spec §4.6 rule 1, §8.7).
const ghostTTL = 10 * time.Minute

// Service implements spec §4.6's OrderService contract.
type Service struct {
	repo     repository.OrderRepository
	configs  *configstore.Store
	exchange gateway.ExchangeClient
	log      *logger.Logger
}

// New constructs an order service.
func New(repo repository.OrderRepository, configs *configstore.Store, exchange gateway.ExchangeClient, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{repo: repo, configs: configs, exchange: exchange, log: log.WithComponent("orderservice")}
}

// RegisterSubmission obtains a fresh clientOrderId and records a PENDING
// order with no externalOrderId yet (spec §4.6).
func (s *Service) RegisterSubmission(ctx context.Context, botID int64, symbol string, side entity.Side, orderType entity.OrderType, quantity, price float64) (string, error) {
	clientOrderID, err := s.configs.NextOrderId(ctx, botID)
	if err != nil {
		return "", err
	}

	order := &entity.Order{
		BotID:         botID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		OrderType:     orderType,
		Quantity:      quantity,
		Price:         price,
		Status:        entity.OrderStatusPending,
		Timestamp:     time.Now(),
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return "", xerr.Transient("RegisterSubmission", err)
	}
	return clientOrderID, nil
}

// ConfirmAccepted fills in the exchange-assigned id on a still-PENDING order
// (spec §4.6).
func (s *Service) ConfirmAccepted(ctx context.Context, clientOrderID, externalOrderID string, exchangeCreatedAt time.Time) error {
	order, err := s.repo.GetByClientOrderID(ctx, clientOrderID)
	if err != nil {
		return xerr.NotFound("ConfirmAccepted", err)
	}
	order.ExternalOrderID = externalOrderID
	order.ExchangeCreatedAt = exchangeCreatedAt
	return s.repo.Update(ctx, order)
}

// MarkFilled transitions PENDING to FILLED (spec §4.6).
func (s *Service) MarkFilled(ctx context.Context, externalOrderID string, at time.Time) error {
	order, err := s.repo.GetByExternalID(ctx, externalOrderID)
	if err != nil {
		return xerr.NotFound("MarkFilled", err)
	}
	if order.Status != entity.OrderStatusPending {
		return nil
	}
	order.Status = entity.OrderStatusFilled
	if order.ExchangeCreatedAt.IsZero() {
		order.ExchangeCreatedAt = at
	}
	return s.repo.Update(ctx, order)
}

// MarkClosed transitions FILLED to CLOSED with realized PnL (spec §4.6: only
// PositionTracker or reconciliation invoke this).
func (s *Service) MarkClosed(ctx context.Context, externalOrderID string, closePrice, closeQty float64, closeTime time.Time, closeType entity.CloseType, pnl, pnlPct float64) error {
	order, err := s.repo.GetByExternalID(ctx, externalOrderID)
	if err != nil {
		return xerr.NotFound("MarkClosed", err)
	}
	order.Status = entity.OrderStatusClosed
	order.ClosePrice = closePrice
	order.CloseQuantity = closeQty
	order.CloseTime = closeTime
	order.CloseType = closeType
	order.PnL = pnl
	order.PnLPct = pnlPct
	return s.repo.Update(ctx, order)
}

func (s *Service) ListOpenForBot(ctx context.Context, botID int64) ([]*entity.Order, error) {
	orders, err := s.repo.List(ctx, repository.OrderFilter{BotID: botID})
	if err != nil {
		return nil, err
	}
	open := make([]*entity.Order, 0, len(orders))
	for _, o := range orders {
		if o.IsOpen() {
			open = append(open, o)
		}
	}
	return open, nil
}

func (s *Service) ListAllForBot(ctx context.Context, botID int64) ([]*entity.Order, error) {
	return s.repo.List(ctx, repository.OrderFilter{BotID: botID})
}

func (s *Service) GetByExternalId(ctx context.Context, externalOrderID string) (*entity.Order, error) {
	return s.repo.GetByExternalID(ctx, externalOrderID)
}

// SyncWithExchange fetches open orders and recent fills and applies the
// three reconciliation rules from spec §4.6.
func (s *Service) SyncWithExchange(ctx context.Context, cfg *entity.BotConfig) (int, error) {
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}

	exchangeOrders, err := s.exchange.GetOpenOrders(ctx, creds, "", gateway.MarketTypePerp)
	if err != nil {
		return 0, err
	}
	exchangeByExternalID := make(map[string]*entity.Order, len(exchangeOrders))
	for _, eo := range exchangeOrders {
		exchangeByExternalID[eo.ExternalOrderID] = eo
	}

	localOrders, err := s.repo.List(ctx, repository.OrderFilter{BotID: cfg.BotID})
	if err != nil {
		return 0, err
	}

	synced := 0

	// Rule 1: ghost cleanup.
	for _, lo := range localOrders {
		if lo.Status != entity.OrderStatusPending {
			continue
		}
		if time.Since(lo.Timestamp) <= ghostTTL {
			continue
		}
		if lo.ExternalOrderID != "" {
			if _, stillOpen := exchangeByExternalID[lo.ExternalOrderID]; stillOpen {
				continue
			}
		}
		lo.Status = entity.OrderStatusCancelled
		if err := s.repo.Update(ctx, lo); err != nil {
			s.log.Error("ghost cleanup update failed for %s: %v", lo.ClientOrderID, err)
			continue
		}
		metrics.GhostOrdersCancelledTotal.Inc()
		synced++
	}

	// Rule 3: status correction (local PENDING that is FILLED on exchange).
	// Rule 2 depends on exit fills; fetch fill history for symbols we know about.
	symbols := map[string]bool{}
	for _, lo := range localOrders {
		symbols[lo.Symbol] = true
	}

	to := time.Now()
	from := to.Add(-24 * time.Hour)
	for symbol := range symbols {
		fills, err := s.exchange.GetFillHistory(ctx, creds, symbol, from, to, 200, gateway.MarketTypePerp)
		if err != nil {
			s.log.Error("SyncWithExchange: GetFillHistory(%s) failed: %v", symbol, err)
			continue
		}
		filledExternalIDs := make(map[string]gateway.FillRecord, len(fills))
		for _, f := range fills {
			filledExternalIDs[f.ExternalOrderID] = *f
		}

		for _, lo := range localOrders {
			if lo.Symbol != symbol || lo.Status != entity.OrderStatusPending {
				continue
			}
			if _, filled := filledExternalIDs[lo.ExternalOrderID]; filled {
				lo.Status = entity.OrderStatusFilled
				if err := s.repo.Update(ctx, lo); err != nil {
					s.log.Error("status correction failed for %s: %v", lo.ClientOrderID, err)
					continue
				}
				synced++
			}
		}

		// Rule 2: missed fills — a FILLED local order whose exit fill exists
		// remotely but is not recorded locally gets patched via MarkClosed.
		for _, lo := range localOrders {
			if lo.Symbol != symbol || lo.Status != entity.OrderStatusFilled {
				continue
			}
			exit, ok := filledExternalIDs[lo.ExternalOrderID]
			if !ok {
				continue
			}
			pnl := (exit.Price - lo.Price) * exit.Quantity
			if lo.Side == entity.SideSell {
				pnl = -pnl
			}
			if err := s.MarkClosed(ctx, lo.ExternalOrderID, exit.Price, exit.Quantity, exit.Timestamp, entity.CloseTypeAuto, pnl, pnlPct(pnl, lo.Price, exit.Quantity)); err != nil {
				s.log.Error("missed-fill patch failed for %s: %v", lo.ClientOrderID, err)
				continue
			}
			metrics.MissedFillsPatchedTotal.Inc()
			synced++
		}
	}

	return synced, nil
}

func pnlPct(pnl, entryPrice, quantity float64) float64 {
	notional := entryPrice * quantity
	if notional == 0 {
		return 0
	}
	return pnl / notional * 100
}

// ScanAndCleanupOrphans cancels reduce-only open orders for which the bot
// has no corresponding OPEN position (spec §4.6). full scans every symbol
// the exchange reports; otherwise only symbols with a local record are scanned.
func (s *Service) ScanAndCleanupOrphans(ctx context.Context, cfg *entity.BotConfig, openPositionSymbols map[string]bool, full bool) (int, error) {
	creds := gateway.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}

	scope := ""
	orders, err := s.exchange.GetOpenOrders(ctx, creds, scope, gateway.MarketTypePerp)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range orders {
		if !o.OrderType.IsReduceOnly() {
			continue
		}
		if !full {
			local, err := s.repo.List(ctx, repository.OrderFilter{BotID: cfg.BotID, Symbol: o.Symbol, Limit: 1})
			if err != nil || len(local) == 0 {
				continue
			}
		}
		if openPositionSymbols[o.Symbol] {
			continue
		}
		if err := s.exchange.CancelOrder(ctx, creds, o.Symbol, o.ExternalOrderID); err != nil {
			if !xerr.Is(err, xerr.KindNotFound) {
				s.log.Error("orphan cancel failed for %s/%s: %v", o.Symbol, o.ExternalOrderID, err)
				continue
			}
		}
		metrics.OrphanOrdersCancelledTotal.Inc()
		cancelled++
	}
	return cancelled, nil
}

// ClearOrdersByBotId hard-deletes on bot removal (spec §4.6).
func (s *Service) ClearOrdersByBotId(ctx context.Context, botID int64) error {
	return s.repo.DeleteByBotID(ctx, botID)
}

// OwnerPrefix returns true if clientOrderID's first segment identifies botID
// with botClientOrderID (spec §4.6 invariant: "first underscore-separated
// segment is the authoritative owner").
func OwnerPrefix(clientOrderID string, prefix string) bool {
	return strings.HasPrefix(clientOrderID, prefix)
}
