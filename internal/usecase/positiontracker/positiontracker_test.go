package positiontracker

import (
	"context"
	"testing"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/orderservice"
)

// fakePositionRepo is a minimal in-memory repository.PositionRepository.
type fakePositionRepo struct {
	byKey map[string]*entity.Position
	all   []*entity.Position
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{byKey: make(map[string]*entity.Position)}
}

func key(botID int64, symbol string) string {
	return string(rune(botID)) + "|" + symbol
}

func (r *fakePositionRepo) GetOpen(ctx context.Context, botID int64, symbol string) (*entity.Position, error) {
	p, ok := r.byKey[key(botID, symbol)]
	if !ok || !p.IsOpen() {
		return nil, nil
	}
	return p, nil
}

func (r *fakePositionRepo) Upsert(ctx context.Context, pos *entity.Position) error {
	r.byKey[key(pos.BotID, pos.Symbol)] = pos
	for i, p := range r.all {
		if p == pos {
			r.all[i] = pos
			return nil
		}
	}
	r.all = append(r.all, pos)
	return nil
}

func (r *fakePositionRepo) ListOpenForBot(ctx context.Context, botID int64) ([]*entity.Position, error) {
	var out []*entity.Position
	for _, p := range r.all {
		if p.BotID == botID && p.IsOpen() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePositionRepo) ListForBot(ctx context.Context, botID int64, since int64) ([]*entity.Position, error) {
	var out []*entity.Position
	for _, p := range r.all {
		if p.BotID == botID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePositionRepo) DeleteByBotID(ctx context.Context, botID int64) error {
	return nil
}

// fakeOrderRepo is enough of repository.OrderRepository for orderservice.New.
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
		if o.BotID == filter.BotID {
			out = append(out, o)
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

func (r *fakeOrderRepo) DeleteByBotID(ctx context.Context, botID int64) error { return nil }

// fakeConfigRepo backs configstore.Store enough for NextOrderId.
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

func newTracker(t *testing.T) (*Tracker, *fakePositionRepo, *entity.BotConfig) {
	t.Helper()
	cfg := &entity.BotConfig{BotID: 1, BotName: "bot-1", BotClientOrderID: 7}
	configs := configstore.New(&fakeConfigRepo{cfg: cfg}, nil)
	orders := orderservice.New(newFakeOrderRepo(), configs, nil, nil)
	positions := newFakePositionRepo()
	return New(positions, orders, configs, nil), positions, cfg
}

func TestOnFill_OpensNewPositionLong(t *testing.T) {
	tr, positions, cfg := newTracker(t)
	prefix := entity.OwnerBotClientPrefix(cfg.BotID, cfg.BotClientOrderID)

	fill := &entity.Fill{
		Symbol:          "BTC-PERP",
		Side:            entity.FillSideBid,
		Quantity:        1,
		Price:           50000,
		ExternalOrderID: "ext-1",
		ClientOrderID:   prefix + "1",
		Timestamp:       time.Now(),
	}

	if err := tr.OnFill(context.Background(), cfg, fill); err != nil {
		t.Fatalf("OnFill: %v", err)
	}

	pos, _ := positions.GetOpen(context.Background(), cfg.BotID, "BTC-PERP")
	if pos == nil {
		t.Fatal("expected an open position")
	}
	if pos.Side != entity.PositionLong {
		t.Fatalf("side = %s, want LONG", pos.Side)
	}
	if pos.EntryPrice != 50000 || pos.CurrentQuantity != 1 {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestOnFill_IgnoresFillsNotOwnedByBot(t *testing.T) {
	tr, positions, cfg := newTracker(t)

	fill := &entity.Fill{
		Symbol:          "BTC-PERP",
		Side:            entity.FillSideBid,
		Quantity:        1,
		Price:           50000,
		ExternalOrderID: "ext-1",
		ClientOrderID:   "999_1_1", // different bot/clientOrderId prefix
		Timestamp:       time.Now(),
	}

	if err := tr.OnFill(context.Background(), cfg, fill); err != nil {
		t.Fatalf("OnFill: %v", err)
	}

	pos, _ := positions.GetOpen(context.Background(), cfg.BotID, "BTC-PERP")
	if pos != nil {
		t.Fatalf("expected no position to be created, got %+v", pos)
	}
}

func TestOnFill_SameSideBlendsEntryPrice(t *testing.T) {
	tr, positions, cfg := newTracker(t)
	prefix := entity.OwnerBotClientPrefix(cfg.BotID, cfg.BotClientOrderID)

	first := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideBid, Quantity: 1, Price: 50000, ExternalOrderID: "ext-1", ClientOrderID: prefix + "1", Timestamp: time.Now()}
	second := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideBid, Quantity: 1, Price: 52000, ExternalOrderID: "ext-2", ClientOrderID: prefix + "2", Timestamp: time.Now()}

	if err := tr.OnFill(context.Background(), cfg, first); err != nil {
		t.Fatalf("OnFill first: %v", err)
	}
	if err := tr.OnFill(context.Background(), cfg, second); err != nil {
		t.Fatalf("OnFill second: %v", err)
	}

	pos, _ := positions.GetOpen(context.Background(), cfg.BotID, "BTC-PERP")
	if pos.CurrentQuantity != 2 {
		t.Fatalf("quantity = %v, want 2", pos.CurrentQuantity)
	}
	want := (50000.0 + 52000.0) / 2
	if pos.EntryPrice != want {
		t.Fatalf("entryPrice = %v, want %v", pos.EntryPrice, want)
	}
}

func TestOnFill_OppositeSideRealizesPnLAndCloses(t *testing.T) {
	tr, positions, cfg := newTracker(t)
	prefix := entity.OwnerBotClientPrefix(cfg.BotID, cfg.BotClientOrderID)

	open := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideBid, Quantity: 1, Price: 50000, ExternalOrderID: "ext-1", ClientOrderID: prefix + "1", Timestamp: time.Now()}
	if err := tr.OnFill(context.Background(), cfg, open); err != nil {
		t.Fatalf("OnFill open: %v", err)
	}

	close := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideAsk, Quantity: 1, Price: 51000, ExternalOrderID: "ext-2", ClientOrderID: prefix + "2", Timestamp: time.Now()}
	if err := tr.OnFill(context.Background(), cfg, close); err != nil {
		t.Fatalf("OnFill close: %v", err)
	}

	all, _ := positions.ListForBot(context.Background(), cfg.BotID, 0)
	if len(all) != 1 {
		t.Fatalf("expected 1 position record, got %d", len(all))
	}
	got := all[0]
	if got.Status != entity.PositionClosed {
		t.Fatalf("status = %s, want CLOSED", got.Status)
	}
	if got.PnL != 1000 {
		t.Fatalf("PnL = %v, want 1000", got.PnL)
	}
	if got.CurrentQuantity != 0 {
		t.Fatalf("currentQuantity = %v, want 0", got.CurrentQuantity)
	}
}

func TestOnFill_OversizedOppositeFillFlipsSide(t *testing.T) {
	tr, positions, cfg := newTracker(t)
	prefix := entity.OwnerBotClientPrefix(cfg.BotID, cfg.BotClientOrderID)

	open := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideBid, Quantity: 1, Price: 50000, ExternalOrderID: "ext-1", ClientOrderID: prefix + "1", Timestamp: time.Now()}
	if err := tr.OnFill(context.Background(), cfg, open); err != nil {
		t.Fatalf("OnFill open: %v", err)
	}

	flip := &entity.Fill{Symbol: "BTC-PERP", Side: entity.FillSideAsk, Quantity: 1.5, Price: 51000, ExternalOrderID: "ext-2", ClientOrderID: prefix + "2", Timestamp: time.Now()}
	if err := tr.OnFill(context.Background(), cfg, flip); err != nil {
		t.Fatalf("OnFill flip: %v", err)
	}

	pos, _ := positions.GetOpen(context.Background(), cfg.BotID, "BTC-PERP")
	if pos == nil {
		t.Fatal("expected a new open position from the flip remainder")
	}
	if pos.Side != entity.PositionShort {
		t.Fatalf("side = %s, want SHORT", pos.Side)
	}
	if pos.CurrentQuantity != 0.5 {
		t.Fatalf("currentQuantity = %v, want 0.5", pos.CurrentQuantity)
	}
}

func TestComputeStats_ProfitFactorIsCappedWhenNoLosses(t *testing.T) {
	positions := []*entity.Position{
		{Status: entity.PositionClosed, PnL: 100, InitialQuantity: 1, EntryPrice: 100},
		{Status: entity.PositionClosed, PnL: 50, InitialQuantity: 1, EntryPrice: 100},
	}
	stats := computeStats(positions)
	if stats.ProfitFactor != 999 {
		t.Fatalf("ProfitFactor = %v, want 999 (wins with no losses)", stats.ProfitFactor)
	}
	if stats.WinRate != 100 {
		t.Fatalf("WinRate = %v, want 100", stats.WinRate)
	}
}

func TestComputeStats_MixedWinsAndLosses(t *testing.T) {
	positions := []*entity.Position{
		{Status: entity.PositionClosed, PnL: 200, InitialQuantity: 1, EntryPrice: 100},
		{Status: entity.PositionClosed, PnL: -100, InitialQuantity: 1, EntryPrice: 100},
		{Status: entity.PositionOpen, PnL: 9999}, // must be ignored
	}
	stats := computeStats(positions)
	if stats.TotalTrades != 2 {
		t.Fatalf("TotalTrades = %d, want 2", stats.TotalTrades)
	}
	if stats.ProfitFactor != 2 {
		t.Fatalf("ProfitFactor = %v, want 2", stats.ProfitFactor)
	}
	if stats.WinRate != 50 {
		t.Fatalf("WinRate = %v, want 50", stats.WinRate)
	}
	if stats.TotalPnL != 100 {
		t.Fatalf("TotalPnL = %v, want 100", stats.TotalPnL)
	}
}

func TestComputeStats_NoTradesYieldsZeroProfitFactor(t *testing.T) {
	stats := computeStats(nil)
	if stats.ProfitFactor != 0 {
		t.Fatalf("ProfitFactor = %v, want 0 with no trades", stats.ProfitFactor)
	}
}

func TestTrackBotPositions_ClosesPositionWhenExchangeFlat(t *testing.T) {
	tr, positions, cfg := newTracker(t)
	_ = positions.Upsert(context.Background(), &entity.Position{
		BotID: cfg.BotID, Symbol: "ETH-PERP", Side: entity.PositionLong,
		EntryPrice: 2000, InitialQuantity: 1, CurrentQuantity: 1, Status: entity.PositionOpen,
	})

	err := tr.TrackBotPositions(context.Background(), cfg, map[string]float64{"ETH-PERP": 0}, nil)
	if err != nil {
		t.Fatalf("TrackBotPositions: %v", err)
	}

	pos, _ := positions.GetOpen(context.Background(), cfg.BotID, "ETH-PERP")
	if pos != nil {
		t.Fatalf("expected position closed, still open: %+v", pos)
	}
}
