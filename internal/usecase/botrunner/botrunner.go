// Package botrunner drives one live bot's decision loop, trailing-stop
// cycle, and monitor loops until stopped (spec §4.4).
package botrunner

import (
	"context"
	"sync"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/domain/service"
	"github.com/nyx-quant/perpsup/internal/infrastructure/exchangeclient"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/eventbus"
	"github.com/nyx-quant/perpsup/internal/usecase/monitor"
	"github.com/nyx-quant/perpsup/internal/usecase/orderservice"
	"github.com/nyx-quant/perpsup/internal/usecase/positiontracker"
	"github.com/nyx-quant/perpsup/internal/usecase/risk"
	strategyindicators "github.com/nyx-quant/perpsup/internal/usecase/strategy"
	"github.com/nyx-quant/perpsup/internal/usecase/trailingstop"
)

// decisionTickTimeout bounds an ON_CANDLE_CLOSE tick (spec §4.4).
const decisionTickTimeout = 3 * time.Minute

// atrPeriod is the lookback used when deriving ATR for the hybrid trailing
// mode from fetched candles (spec §4.8).
const atrPeriod = 14

// Deps bundles the runner's collaborators (spec §4.4: "handles to
// ConfigStore, ExchangeClient, OrderService, PositionTracker,
// TrailingStopEngine, the event bus").
type Deps struct {
	Configs   *configstore.Store
	Exchange  gateway.ExchangeClient
	Orders    *orderservice.Service
	Positions *positiontracker.Tracker
	Trailing  *trailingstop.Engine
	Events    *eventbus.Bus
	Factory   service.StrategyFactory
	// Signals is optional: only strategies that read MarketState.MarketSignal
	// (e.g. ALPHA_FLOW) need it populated.
	Signals service.MarketSignalSource
	// FillStreamURL, when non-empty, is dialed per-bot so PositionTracker.OnFill
	// runs off the live fill feed instead of only the trailingSync sweep
	// (spec §4.7). Left empty, fills are only ever reconstructed by
	// trailingSyncCycle's best-effort sweep.
	FillStreamURL string
	Log           *logger.Logger
}

// Runner drives one bot from a frozen config snapshot until Stop is called.
type Runner struct {
	cfg  *entity.BotConfig
	deps Deps
	log  *logger.Logger

	strategy service.Strategy
	risk     *risk.Checker

	monitors   []*monitor.Loop
	fillStream *exchangeclient.FillStream

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New constructs a Runner for cfg, not yet started.
func New(cfg *entity.BotConfig, deps Deps) (*Runner, error) {
	strat, err := deps.Factory.Create(cfg.StrategyName)
	if err != nil {
		return nil, xerr.Config("New", err)
	}

	log := deps.Log
	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("botrunner").WithBotID(cfg.BotID)

	return &Runner{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		strategy: strat,
		risk:     risk.NewChecker(cfg),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the decision loop, the fill stream (if configured), and
// all monitor loops.
func (r *Runner) Start(ctx context.Context) {
	r.registerMonitors(ctx)
	r.startFillStream(ctx)
	go r.decisionLoop(ctx)
}

// Monitors returns the bot's live monitor loops, for metrics polling
// (SPEC_FULL §D). The slice is not safe to mutate.
func (r *Runner) Monitors() []*monitor.Loop {
	return r.monitors
}

// Stop cancels the decision loop and every monitor loop, and does not
// return until no further tick can fire (spec §4.4 cancellation guarantee).
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
	for _, m := range r.monitors {
		m.Stop()
	}
	if r.fillStream != nil {
		if err := r.fillStream.Disconnect(); err != nil {
			r.log.Error("fillstream disconnect: %v", err)
		}
	}
}

// startFillStream dials the live fill feed when configured; a dial failure
// is logged and left to the trailingSync sweep rather than failing Start
// (spec §4.7: the sweep path exists precisely for when no stream is available).
func (r *Runner) startFillStream(ctx context.Context) {
	if r.deps.FillStreamURL == "" {
		return
	}
	stream := exchangeclient.NewFillStream(r.deps.FillStreamURL, r.log)
	stream.Subscribe(r.onFill)
	if err := stream.Connect(ctx); err != nil {
		r.log.Error("fillstream connect failed, falling back to sweep mode: %v", err)
		return
	}
	r.fillStream = stream
}

// onFill feeds one exchange fill report into PositionTracker (spec §4.7).
// Ownership filtering happens inside OnFill itself.
func (r *Runner) onFill(fill *entity.Fill) {
	if err := r.deps.Positions.OnFill(context.Background(), r.cfg, fill); err != nil {
		r.log.Error("OnFill failed for %s: %v", fill.ExternalOrderID, err)
	}
}

// fullScanInterval is how often orphanOrdersCycle forces a full-account scan
// across all symbols rather than just symbols with a local position record
// (spec §4.5).
const fullScanInterval = 5 * time.Minute

func (r *Runner) registerMonitors(ctx context.Context) {
	add := func(kind monitor.Kind, cb monitor.Callback) *monitor.Loop {
		loop := monitor.NewLoop(r.cfg.BotID, kind, monitor.Table[kind], cb, r.log)
		r.monitors = append(r.monitors, loop)
		loop.Start(ctx, monitor.Table[kind].WarmUp)
		return loop
	}

	add(monitor.KindPendingOrders, r.pendingOrdersCycle)

	// orphanOrdersCycle needs a handle to its own Loop to read/write
	// LastFullScan (spec §4.5), so its Loop is created before its callback
	// closure is bound to the Loop.
	var orphanLoop *monitor.Loop
	orphanLoop = monitor.NewLoop(r.cfg.BotID, monitor.KindOrphanOrders, monitor.Table[monitor.KindOrphanOrders], func(ctx context.Context) error {
		return r.orphanOrdersCycle(ctx, orphanLoop)
	}, r.log)
	r.monitors = append(r.monitors, orphanLoop)
	orphanLoop.Start(ctx, monitor.Table[monitor.KindOrphanOrders].WarmUp)

	add(monitor.KindTakeProfit, r.takeProfitCycle)
	add(monitor.KindTrailingCleaner, r.trailingCleanerCycle)
	add(monitor.KindTrailingSync, r.trailingSyncCycle)
}

func (r *Runner) pendingOrdersCycle(ctx context.Context) error {
	synced, err := r.deps.Orders.SyncWithExchange(ctx, r.cfg)
	if err != nil {
		return err
	}
	r.deps.Events.Publish(eventbus.PendingOrdersUpdate, map[string]interface{}{
		"botId": r.cfg.BotID, "synced": synced,
	})
	return nil
}

// orphanOrdersCycle cancels reduce-only orders that no longer have a
// matching open position. Every 5 minutes it forces a full-account scan
// across all symbols the exchange reports open orders for; between full
// scans it only scans symbols with a local order record, and skips symbols
// this bot holds an open position for (spec §4.5).
func (r *Runner) orphanOrdersCycle(ctx context.Context, loop *monitor.Loop) error {
	positions, err := r.deps.Positions.GetBotOpenPositions(ctx, r.cfg.BotID)
	if err != nil {
		return err
	}
	openSymbols := make(map[string]bool, len(positions))
	for _, p := range positions {
		openSymbols[p.Symbol] = true
	}

	full := time.Since(loop.LastFullScan()) >= fullScanInterval
	cancelled, err := r.deps.Orders.ScanAndCleanupOrphans(ctx, r.cfg, openSymbols, full)
	if err != nil {
		return err
	}
	if full {
		loop.MarkFullScan(time.Now())
	}

	r.deps.Events.Publish(eventbus.OrphanOrdersCleanup, map[string]interface{}{
		"botId": r.cfg.BotID, "cancelled": cancelled, "fullScan": full,
	})
	return nil
}

// takeProfitCycle ensures every open position this bot holds has a matching
// take-profit reduce-only order, placing one when missing (spec §4.5). A
// bot with no MinProfitPercentage configured has no take-profit target and
// is skipped.
func (r *Runner) takeProfitCycle(ctx context.Context) error {
	if r.cfg.MinProfitPercentage <= 0 {
		return nil
	}

	creds := gateway.Credentials{APIKey: r.cfg.APIKey, APISecret: r.cfg.APISecret}
	positions, err := r.deps.Positions.GetBotOpenPositions(ctx, r.cfg.BotID)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	openOrders, err := r.deps.Orders.ListOpenForBot(ctx, r.cfg.BotID)
	if err != nil {
		return err
	}
	hasTakeProfit := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		if o.Symbol != "" && o.OrderType == entity.OrderTypeTakeProfit {
			hasTakeProfit[o.Symbol] = true
		}
	}

	for _, pos := range positions {
		if hasTakeProfit[pos.Symbol] {
			continue
		}

		side := entity.SideSell
		targetPrice := pos.EntryPrice * (1 + r.cfg.MinProfitPercentage/100)
		if pos.Side == entity.PositionShort {
			side = entity.SideBuy
			targetPrice = pos.EntryPrice * (1 - r.cfg.MinProfitPercentage/100)
		}

		clientOrderID, err := r.deps.Orders.RegisterSubmission(ctx, r.cfg.BotID, pos.Symbol, side, entity.OrderTypeTakeProfit, pos.CurrentQuantity, targetPrice)
		if err != nil {
			r.log.Error("takeProfit: register submission for %s failed: %v", pos.Symbol, err)
			continue
		}
		placed, err := r.deps.Exchange.PlaceOrder(ctx, creds, gateway.OrderPayload{
			Symbol:       pos.Symbol,
			Side:         side,
			OrderType:    entity.OrderTypeTakeProfit,
			Quantity:     pos.CurrentQuantity,
			TriggerPrice: targetPrice,
			ReduceOnly:   true,
		})
		if err != nil {
			r.log.Error("takeProfit: place order for %s failed: %v", pos.Symbol, err)
			continue
		}
		if err := r.deps.Orders.ConfirmAccepted(ctx, clientOrderID, placed.ExternalOrderID, placed.ExchangeCreatedAt); err != nil {
			r.log.Error("takeProfit: confirm accepted for %s failed: %v", pos.Symbol, err)
			continue
		}
		r.deps.Events.Publish(eventbus.TakeProfitUpdate, map[string]interface{}{
			"botId": r.cfg.BotID, "symbol": pos.Symbol, "targetPrice": targetPrice,
		})
	}
	return nil
}

// trailingCycle drives the trailing-stop arm/trail cycle for every open
// position this bot holds (spec §4.8). It runs inline from each decision
// tick (§4.4) and is not registered as a monitor loop.
func (r *Runner) trailingCycle(ctx context.Context) error {
	positions, err := r.deps.Positions.GetBotOpenPositions(ctx, r.cfg.BotID)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		markPrice, atr, err := r.markAndATR(ctx, pos.Symbol)
		if err != nil {
			return err
		}
		if err := r.deps.Trailing.Cycle(ctx, r.cfg, pos, markPrice, atr); err != nil {
			return err
		}
		r.deps.Events.Publish(eventbus.TrailingStopUpdate, map[string]interface{}{
			"botId": r.cfg.BotID, "symbol": pos.Symbol, "markPrice": markPrice,
		})
	}
	return nil
}

func (r *Runner) trailingCleanerCycle(ctx context.Context) error {
	_, err := r.deps.Trailing.CleanOrphanedTrailingStates(ctx, r.cfg)
	return err
}

// trailingSyncCycle reconstructs P&L from the exchange's net-position view
// and reconciles each TrailingState's activeStopOrderId against the real
// open reduce-only stop orders, recreating or clearing it as needed
// (spec §4.5, §4.8).
func (r *Runner) trailingSyncCycle(ctx context.Context) error {
	creds := gateway.Credentials{APIKey: r.cfg.APIKey, APISecret: r.cfg.APISecret}
	exchangePositions, err := r.deps.Exchange.GetPositionsCached(ctx, creds)
	if err != nil {
		return err
	}
	netBySymbol := make(map[string]float64, len(exchangePositions))
	markBySymbol := make(map[string]float64, len(exchangePositions))
	for _, p := range exchangePositions {
		netBySymbol[p.Symbol] = p.NetQuantity
		markBySymbol[p.Symbol] = p.MarkPrice
	}
	if err := r.deps.Positions.TrackBotPositions(ctx, r.cfg, netBySymbol, markBySymbol); err != nil {
		return err
	}

	positions, err := r.deps.Positions.GetBotOpenPositions(ctx, r.cfg.BotID)
	if err != nil {
		return err
	}
	return r.deps.Trailing.Sync(ctx, r.cfg, positions, markBySymbol)
}

func (r *Runner) markAndATR(ctx context.Context, symbol string) (float64, float64, error) {
	tickers, err := r.deps.Exchange.GetTickers(ctx, time.Minute)
	if err != nil {
		return 0, 0, err
	}
	var mark float64
	for _, t := range tickers {
		if t.Symbol == symbol {
			mark = t.LastPrice
			break
		}
	}

	var atr float64
	if r.cfg.EnableHybridStopStrategy {
		candles, err := r.deps.Exchange.GetKlines(ctx, symbol, r.cfg.Timeframe, atrPeriod+1)
		if err == nil && len(candles) > 1 {
			atr = candleATR(candles)
		}
	}
	return mark, atr, nil
}

// decisionLoop implements spec §4.4's REALTIME/ON_CANDLE_CLOSE schedule.
func (r *Runner) decisionLoop(ctx context.Context) {
	defer close(r.done)

	mode := r.cfg.EffectiveExecutionMode()

	if mode == entity.ExecutionRealtime {
		r.runTick(ctx, false)
	}

	for {
		delay := r.nextDelay(mode)
		t := time.NewTimer(delay)

		select {
		case <-r.stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		select {
		case <-r.stopCh:
			return
		default:
		}

		r.runTick(ctx, mode == entity.ExecutionOnCandleClose)
	}
}

func (r *Runner) nextDelay(mode entity.ExecutionMode) time.Duration {
	if mode == entity.ExecutionRealtime {
		return 60 * time.Second
	}
	millis := r.cfg.Timeframe.Millis()
	if millis <= 0 {
		return 60 * time.Second
	}
	now := time.Now().UnixMilli()
	next := ((now / millis) + 1) * millis
	return time.Duration(next-now) * time.Millisecond
}

// runTick performs one decision tick exactly per spec §4.4's ordered steps.
func (r *Runner) runTick(ctx context.Context, guardTimeout bool) {
	tickCtx := ctx
	var cancel context.CancelFunc
	if guardTimeout {
		tickCtx, cancel = context.WithTimeout(ctx, decisionTickTimeout)
		defer cancel()
	}

	if err := r.deps.Configs.SetStatus(tickCtx, r.cfg.BotID, entity.BotStatusRunning, nil); err != nil {
		r.log.Error("SetStatus(running) failed: %v", err)
	}

	if err := r.tick(tickCtx); err != nil {
		r.log.Error("decision tick failed: %v", err)
		if setErr := r.deps.Configs.SetStatus(ctx, r.cfg.BotID, entity.BotStatusError, nil); setErr != nil {
			r.log.Error("SetStatus(error) failed: %v", setErr)
		}
		r.deps.Events.Publish(eventbus.BotExecutionError, map[string]interface{}{
			"botId": r.cfg.BotID, "error": err.Error(),
		})
		return
	}

	next := time.Now().Add(r.nextDelay(r.cfg.EffectiveExecutionMode()))
	if err := r.deps.Configs.Update(ctx, r.cfg.BotID, nextValidationPatch(next)); err != nil {
		r.log.Error("persist nextValidationAt failed: %v", err)
	}
	r.deps.Events.Publish(eventbus.BotExecutionSuccess, map[string]interface{}{"botId": r.cfg.BotID})
}

func nextValidationPatch(at time.Time) repository.ConfigPatch {
	millis := at.UnixMilli()
	return repository.ConfigPatch{NextValidationAt: &millis}
}

func (r *Runner) tick(ctx context.Context) error {
	state, err := r.buildMarketState(ctx)
	if err != nil {
		return err
	}

	decision, err := r.strategy.Analyze(ctx, r.cfg.Timeframe, state)
	if err != nil {
		return err
	}
	r.deps.Events.Publish(eventbus.DecisionAnalysis, map[string]interface{}{
		"botId": r.cfg.BotID, "signals": len(decision.Signals),
	})

	if err := r.executeSignals(ctx, decision); err != nil {
		return err
	}

	if err := r.trailingCycle(ctx); err != nil {
		return err
	}

	// P&L summary is best-effort (spec §4.4): errors here never fail the tick.
	// It covers the bot's whole closed-position history; it is not limited
	// to a 24h window.
	if _, err := r.deps.Positions.GetBotPnLStats(ctx, r.cfg.BotID); err != nil {
		r.log.Error("PnL summary failed: %v", err)
	}

	return nil
}

// primarySymbol picks the one symbol a decision tick analyzes: the first
// authorized token if the bot restricts itself (spec §3 "authorizedTokens:
// empty = all"), else the first symbol a held position or open order
// already references, else the first ticker the exchange reports.
func (r *Runner) primarySymbol(tickers []*entity.Ticker, orders []*entity.Order, positions []*entity.Position) string {
	if len(r.cfg.AuthorizedTokens) > 0 {
		return r.cfg.AuthorizedTokens[0]
	}
	if len(positions) > 0 {
		return positions[0].Symbol
	}
	if len(orders) > 0 {
		return orders[0].Symbol
	}
	if len(tickers) > 0 {
		return tickers[0].Symbol
	}
	return ""
}

func (r *Runner) buildMarketState(ctx context.Context) (*service.MarketState, error) {
	orders, err := r.deps.Orders.ListOpenForBot(ctx, r.cfg.BotID)
	if err != nil {
		return nil, err
	}
	positions, err := r.deps.Positions.GetBotOpenPositions(ctx, r.cfg.BotID)
	if err != nil {
		return nil, err
	}
	var pos *entity.Position
	if len(positions) > 0 {
		pos = positions[0]
	}

	tickers, err := r.deps.Exchange.GetTickers(ctx, time.Minute)
	if err != nil {
		return nil, err
	}

	symbol := r.primarySymbol(tickers, orders, positions)
	var ticker *entity.Ticker
	for _, t := range tickers {
		if t.Symbol == symbol {
			ticker = t
			break
		}
	}

	state := &service.MarketState{Position: pos, Orders: orders, Ticker: ticker}

	if ticker != nil {
		candles, err := r.deps.Exchange.GetKlines(ctx, symbol, r.cfg.Timeframe, atrPeriod+1)
		if err == nil {
			if r.cfg.EnableHeikinAshi {
				candles = strategyindicators.HeikinAshi(candles)
			}
			state.Candles = candles
			if r.cfg.EnableHybridStopStrategy && len(candles) > 1 {
				state.ATR = candleATR(candles)
			}
		}
		if r.deps.Signals != nil {
			if sig, err := r.deps.Signals.GetMarketSignal(ctx, symbol); err == nil {
				state.MarketSignal = sig
			}
		}
	}

	return state, nil
}

func candleATR(candles []*entity.Candle) float64 {
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return strategyindicators.ATR(highs, lows, closes, atrPeriod)
}

// executeSignals submits each entry/exit signal the strategy emitted,
// gated by the risk checker's session-level and per-order capital checks
// (SPEC_FULL §C.9: a bot that has tripped its drawdown guard or would
// exceed its allocated capital share never reaches PlaceOrder).
func (r *Runner) executeSignals(ctx context.Context, decision *service.Decision) error {
	if len(decision.Signals) == 0 {
		return nil
	}

	if res := r.risk.CanTrade(); !res.Allowed {
		r.log.Warn("risk gate blocked tick: %s", res.Reason)
		return nil
	}

	creds := gateway.Credentials{APIKey: r.cfg.APIKey, APISecret: r.cfg.APISecret}
	collateral, err := r.deps.Exchange.GetCollateral(ctx, creds)
	if err != nil {
		return err
	}

	for _, sig := range decision.Signals {
		notional := sig.Quantity * sig.Price
		if res := r.risk.CheckCapitalAllocation(notional, collateral.AvailableMargin); !res.Allowed {
			r.log.Warn("risk gate blocked signal for %s: %s", sig.Symbol, res.Reason)
			continue
		}

		orderType := entity.OrderTypeMarket
		if r.cfg.EnablePostOnly {
			orderType = entity.OrderTypeLimit
		}
		clientOrderID, err := r.deps.Orders.RegisterSubmission(ctx, r.cfg.BotID, sig.Symbol, sig.Side, orderType, sig.Quantity, sig.Price)
		if err != nil {
			return err
		}

		placed, err := r.deps.Exchange.PlaceOrder(ctx, creds, gateway.OrderPayload{
			Symbol:        sig.Symbol,
			Side:          sig.Side,
			OrderType:     orderType,
			Quantity:      sig.Quantity,
			Price:         sig.Price,
			PostOnly:      r.cfg.EnablePostOnly,
			ClientOrderID: clientOrderID,
		})
		if err != nil {
			return err
		}
		if err := r.deps.Orders.ConfirmAccepted(ctx, clientOrderID, placed.ExternalOrderID, placed.ExchangeCreatedAt); err != nil {
			return err
		}
	}
	return nil
}
