package orderservice

import (
	"context"
	"testing"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
)

// fakeOrderRepo is a minimal in-memory repository.OrderRepository.
type fakeOrderRepo struct {
	byExternal map[string]*entity.Order
	byClient   map[string]*entity.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byExternal: make(map[string]*entity.Order), byClient: make(map[string]*entity.Order)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *entity.Order) error {
	r.byClient[order.ClientOrderID] = order
	if order.ExternalOrderID != "" {
		r.byExternal[order.ExternalOrderID] = order
	}
	return nil
}

func (r *fakeOrderRepo) GetByExternalID(ctx context.Context, externalOrderID string) (*entity.Order, error) {
	o, ok := r.byExternal[externalOrderID]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return o, nil
}

func (r *fakeOrderRepo) GetByClientOrderID(ctx context.Context, clientOrderID string) (*entity.Order, error) {
	o, ok := r.byClient[clientOrderID]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return o, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, o := range r.byClient {
		if filter.BotID != 0 && o.BotID != filter.BotID {
			continue
		}
		if filter.Symbol != "" && o.Symbol != filter.Symbol {
			continue
		}
		out = append(out, o)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *entity.Order) error {
	r.byClient[order.ClientOrderID] = order
	if order.ExternalOrderID != "" {
		r.byExternal[order.ExternalOrderID] = order
	}
	return nil
}

func (r *fakeOrderRepo) DeleteByBotID(ctx context.Context, botID int64) error {
	for k, o := range r.byClient {
		if o.BotID == botID {
			delete(r.byClient, k)
		}
	}
	return nil
}

type fakeConfigRepo struct {
	cfg     *entity.BotConfig
	counter int64
}

func (r *fakeConfigRepo) Create(ctx context.Context, cfg *entity.BotConfig) (int64, error) {
	return cfg.BotID, nil
}
func (r *fakeConfigRepo) Update(ctx context.Context, botID int64, patch repository.ConfigPatch) error {
	return nil
}
func (r *fakeConfigRepo) SetStatus(ctx context.Context, botID int64, status entity.BotStatus, startTime *int64) error {
	return nil
}
func (r *fakeConfigRepo) NextOrderId(ctx context.Context, botID int64) (int64, error) {
	r.counter++
	return r.counter, nil
}
func (r *fakeConfigRepo) Get(ctx context.Context, botID int64) (*entity.BotConfig, error) {
	return r.cfg, nil
}
func (r *fakeConfigRepo) GetByName(ctx context.Context, botName string) (*entity.BotConfig, error) {
	return r.cfg, nil
}
func (r *fakeConfigRepo) GetByClientOrderId(ctx context.Context, botID, botClientOrderID int64) (*entity.BotConfig, error) {
	return r.cfg, nil
}
func (r *fakeConfigRepo) ListAll(ctx context.Context) ([]*entity.BotConfig, error) {
	return []*entity.BotConfig{r.cfg}, nil
}
func (r *fakeConfigRepo) ListTraditional(ctx context.Context) ([]*entity.BotConfig, error) {
	return []*entity.BotConfig{r.cfg}, nil
}
func (r *fakeConfigRepo) ListEnabled(ctx context.Context) ([]*entity.BotConfig, error) {
	return []*entity.BotConfig{r.cfg}, nil
}
func (r *fakeConfigRepo) CountByStrategy(ctx context.Context, strategyName string) (int, error) {
	return 1, nil
}
func (r *fakeConfigRepo) Delete(ctx context.Context, botID int64) error { return nil }
func (r *fakeConfigRepo) MaxBotID(ctx context.Context) (int64, error)  { return r.cfg.BotID, nil }
func (r *fakeConfigRepo) BotClientOrderIDTaken(ctx context.Context, botClientOrderID int64) (bool, error) {
	return false, nil
}

// fakeExchange is a minimal gateway.ExchangeClient stub for SyncWithExchange
// and ScanAndCleanupOrphans tests.
type fakeExchange struct {
	openOrders []*entity.Order
	fills      []*gateway.FillRecord
	cancelled  []string
}

func (f *fakeExchange) GetMarkets(ctx context.Context) ([]*entity.Ticker, error) { return nil, nil }
func (f *fakeExchange) GetTickers(ctx context.Context, window time.Duration) ([]*entity.Ticker, error) {
	return nil, nil
}
func (f *fakeExchange) GetKlines(ctx context.Context, symbol string, interval entity.Timeframe, limit int) ([]*entity.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) GetAccount(ctx context.Context, creds gateway.Credentials) (*gateway.Account, error) {
	return &gateway.Account{}, nil
}
func (f *fakeExchange) GetCollateral(ctx context.Context, creds gateway.Credentials) (*gateway.Collateral, error) {
	return &gateway.Collateral{}, nil
}
func (f *fakeExchange) GetOpenOrders(ctx context.Context, creds gateway.Credentials, symbol string, marketType gateway.MarketType) ([]*entity.Order, error) {
	return f.openOrders, nil
}
func (f *fakeExchange) GetOpenPositions(ctx context.Context, creds gateway.Credentials) ([]*gateway.ExchangePosition, error) {
	return nil, nil
}
func (f *fakeExchange) GetPositionsCached(ctx context.Context, creds gateway.Credentials) ([]*gateway.ExchangePosition, error) {
	return nil, nil
}
func (f *fakeExchange) GetFillHistory(ctx context.Context, creds gateway.Credentials, symbol string, from, to time.Time, limit int, marketType gateway.MarketType) ([]*gateway.FillRecord, error) {
	return f.fills, nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, creds gateway.Credentials, payload gateway.OrderPayload) (*gateway.PlacedOrder, error) {
	return &gateway.PlacedOrder{}, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, creds gateway.Credentials, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}
func (f *fakeExchange) ForceReset() {}

func newService(t *testing.T, exchange gateway.ExchangeClient) (*Service, *fakeOrderRepo, *entity.BotConfig) {
	t.Helper()
	cfg := &entity.BotConfig{BotID: 1, BotName: "bot-1", BotClientOrderID: 7}
	configs := configstore.New(&fakeConfigRepo{cfg: cfg}, nil)
	orders := newFakeOrderRepo()
	return New(orders, configs, exchange, nil), orders, cfg
}

func TestRegisterSubmission_CreatesPendingOrder(t *testing.T) {
	svc, orders, cfg := newService(t, nil)

	clientOrderID, err := svc.RegisterSubmission(context.Background(), cfg.BotID, "BTC-PERP", entity.SideBuy, entity.OrderTypeLimit, 1, 50000)
	if err != nil {
		t.Fatalf("RegisterSubmission: %v", err)
	}

	order, ok := orders.byClient[clientOrderID]
	if !ok {
		t.Fatal("expected an order to be recorded")
	}
	if order.Status != entity.OrderStatusPending {
		t.Fatalf("status = %s, want PENDING", order.Status)
	}
}

func TestSyncWithExchange_GhostCleanupCancelsStalePendingOrder(t *testing.T) {
	exchange := &fakeExchange{}
	svc, orders, cfg := newService(t, exchange)

	stale := &entity.Order{
		BotID: cfg.BotID, ClientOrderID: "1_7_1", ExternalOrderID: "ext-stale",
		Symbol: "BTC-PERP", Status: entity.OrderStatusPending,
		Timestamp: time.Now().Add(-ghostTTL - time.Minute),
	}
	orders.byClient[stale.ClientOrderID] = stale
	orders.byExternal[stale.ExternalOrderID] = stale

	synced, err := svc.SyncWithExchange(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SyncWithExchange: %v", err)
	}
	if synced != 1 {
		t.Fatalf("synced = %d, want 1", synced)
	}
	if stale.Status != entity.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", stale.Status)
	}
}

func TestSyncWithExchange_LeavesFreshPendingOrderAlone(t *testing.T) {
	exchange := &fakeExchange{}
	svc, orders, cfg := newService(t, exchange)

	fresh := &entity.Order{
		BotID: cfg.BotID, ClientOrderID: "1_7_1", ExternalOrderID: "ext-fresh",
		Symbol: "BTC-PERP", Status: entity.OrderStatusPending, Timestamp: time.Now(),
	}
	orders.byClient[fresh.ClientOrderID] = fresh
	orders.byExternal[fresh.ExternalOrderID] = fresh

	if _, err := svc.SyncWithExchange(context.Background(), cfg); err != nil {
		t.Fatalf("SyncWithExchange: %v", err)
	}
	if fresh.Status != entity.OrderStatusPending {
		t.Fatalf("status = %s, want unchanged PENDING", fresh.Status)
	}
}

func TestSyncWithExchange_StatusCorrectionOnLocalPendingFilledRemotely(t *testing.T) {
	now := time.Now()
	order := &entity.Order{
		BotID: 1, ClientOrderID: "1_7_1", ExternalOrderID: "ext-1",
		Symbol: "BTC-PERP", Side: entity.SideBuy, Status: entity.OrderStatusPending,
		Price: 100, Timestamp: now,
	}
	exchange := &fakeExchange{
		fills: []*gateway.FillRecord{
			{Symbol: "BTC-PERP", ExternalOrderID: "ext-1", Price: 105, Quantity: 1, Timestamp: now},
		},
	}
	svc, orders, cfg := newService(t, exchange)
	orders.byClient[order.ClientOrderID] = order
	orders.byExternal[order.ExternalOrderID] = order

	synced, err := svc.SyncWithExchange(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SyncWithExchange: %v", err)
	}
	if synced != 1 {
		t.Fatalf("synced = %d, want 1", synced)
	}
	if order.Status != entity.OrderStatusFilled {
		t.Fatalf("status = %s, want FILLED", order.Status)
	}
}

func TestSyncWithExchange_MissedFillPatchesClosedPnL(t *testing.T) {
	now := time.Now()
	order := &entity.Order{
		BotID: 1, ClientOrderID: "1_7_1", ExternalOrderID: "ext-1",
		Symbol: "BTC-PERP", Side: entity.SideBuy, Status: entity.OrderStatusFilled,
		Price: 100, Timestamp: now,
	}
	exchange := &fakeExchange{
		fills: []*gateway.FillRecord{
			{Symbol: "BTC-PERP", ExternalOrderID: "ext-1", Price: 110, Quantity: 2, Timestamp: now},
		},
	}
	svc, orders, cfg := newService(t, exchange)
	orders.byClient[order.ClientOrderID] = order
	orders.byExternal[order.ExternalOrderID] = order

	if _, err := svc.SyncWithExchange(context.Background(), cfg); err != nil {
		t.Fatalf("SyncWithExchange: %v", err)
	}
	if order.Status != entity.OrderStatusClosed {
		t.Fatalf("status = %s, want CLOSED", order.Status)
	}
	if order.PnL != 20 {
		t.Fatalf("PnL = %v, want 20", order.PnL)
	}
}

func TestScanAndCleanupOrphans_CancelsReduceOnlyOrderWithNoOpenPosition(t *testing.T) {
	exchange := &fakeExchange{
		openOrders: []*entity.Order{
			{Symbol: "BTC-PERP", ExternalOrderID: "ext-stop", OrderType: entity.OrderTypeReduceOnlyStop},
			{Symbol: "ETH-PERP", ExternalOrderID: "ext-limit", OrderType: entity.OrderTypeLimit},
		},
	}
	svc, _, cfg := newService(t, exchange)

	cancelled, err := svc.ScanAndCleanupOrphans(context.Background(), cfg, map[string]bool{}, true)
	if err != nil {
		t.Fatalf("ScanAndCleanupOrphans: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", cancelled)
	}
	if len(exchange.cancelled) != 1 || exchange.cancelled[0] != "ext-stop" {
		t.Fatalf("cancelled orders = %v, want [ext-stop]", exchange.cancelled)
	}
}

func TestScanAndCleanupOrphans_SkipsReduceOnlyOrderWithOpenPosition(t *testing.T) {
	exchange := &fakeExchange{
		openOrders: []*entity.Order{
			{Symbol: "BTC-PERP", ExternalOrderID: "ext-stop", OrderType: entity.OrderTypeReduceOnlyStop},
		},
	}
	svc, _, cfg := newService(t, exchange)

	cancelled, err := svc.ScanAndCleanupOrphans(context.Background(), cfg, map[string]bool{"BTC-PERP": true}, true)
	if err != nil {
		t.Fatalf("ScanAndCleanupOrphans: %v", err)
	}
	if cancelled != 0 {
		t.Fatalf("cancelled = %d, want 0", cancelled)
	}
}

func TestOwnerPrefix(t *testing.T) {
	prefix := entity.OwnerBotClientPrefix(1, 7)
	if !OwnerPrefix("1_7_42", prefix) {
		t.Fatal("expected clientOrderId to match owner prefix")
	}
	if OwnerPrefix("2_7_42", prefix) {
		t.Fatal("expected clientOrderId from a different bot to not match")
	}
}
