package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
)

// ConfigRepository is the sqlx-backed ConfigRepository (spec §4.1).
type ConfigRepository struct {
	db *sqlx.DB
}

var _ repository.ConfigRepository = (*ConfigRepository)(nil)

// NewConfigRepository wraps db.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

type configRow struct {
	BotID                          int64      `db:"bot_id"`
	BotName                        string     `db:"bot_name"`
	StrategyName                   string     `db:"strategy_name"`
	APIKey                         string     `db:"api_key"`
	APISecret                      string     `db:"api_secret"`
	Timeframe                      string     `db:"timeframe"`
	ExecutionMode                  string     `db:"execution_mode"`
	CapitalPercentage              float64    `db:"capital_percentage"`
	MaxOpenOrders                  int        `db:"max_open_orders"`
	MaxNegativePnlStopPct          float64    `db:"max_negative_pnl_stop_pct"`
	MinProfitPercentage            float64    `db:"min_profit_percentage"`
	MaxSlippagePct                 float64    `db:"max_slippage_pct"`
	EnableTrailing                 bool       `db:"enable_trailing"`
	TrailingStopActivationPct      float64    `db:"trailing_stop_activation_pct"`
	TrailingStopDistancePct        float64    `db:"trailing_stop_distance_pct"`
	EnableHybridStopStrategy       bool       `db:"enable_hybrid_stop_strategy"`
	InitialStopAtrMultiplier       float64    `db:"initial_stop_atr_multiplier"`
	TrailingStopAtrMultiplier      float64    `db:"trailing_stop_atr_multiplier"`
	PartialTakeProfitAtrMultiplier float64    `db:"partial_take_profit_atr_multiplier"`
	PartialTakeProfitPercentage    float64    `db:"partial_take_profit_percentage"`
	EnablePostOnly                 bool       `db:"enable_post_only"`
	EnableMarketFallback           bool       `db:"enable_market_fallback"`
	EnableOrphanMonitor            bool       `db:"enable_orphan_monitor"`
	EnablePendingMonitor           bool       `db:"enable_pending_monitor"`
	EnableHeikinAshi               bool       `db:"enable_heikin_ashi"`
	AuthorizedTokens               string     `db:"authorized_tokens"`
	Enabled                        bool       `db:"enabled"`
	Status                         string     `db:"status"`
	StartTime                      *time.Time `db:"start_time"`
	NextValidationAt               *time.Time `db:"next_validation_at"`
	BotClientOrderID                int64     `db:"bot_client_order_id"`
	OrderCounter                    int64     `db:"order_counter"`
	CreatedAt                       time.Time `db:"created_at"`
	UpdatedAt                       time.Time `db:"updated_at"`
}

func (r configRow) toEntity() *entity.BotConfig {
	cfg := &entity.BotConfig{
		BotID:                          r.BotID,
		BotName:                        r.BotName,
		StrategyName:                   r.StrategyName,
		APIKey:                         r.APIKey,
		APISecret:                      r.APISecret,
		Timeframe:                      entity.Timeframe(r.Timeframe),
		ExecutionMode:                  entity.ExecutionMode(r.ExecutionMode),
		CapitalPercentage:              r.CapitalPercentage,
		MaxOpenOrders:                  r.MaxOpenOrders,
		MaxNegativePnlStopPct:          r.MaxNegativePnlStopPct,
		MinProfitPercentage:            r.MinProfitPercentage,
		MaxSlippagePct:                 r.MaxSlippagePct,
		EnableTrailing:                 r.EnableTrailing,
		TrailingStopActivationPct:      r.TrailingStopActivationPct,
		TrailingStopDistancePct:        r.TrailingStopDistancePct,
		EnableHybridStopStrategy:       r.EnableHybridStopStrategy,
		InitialStopAtrMultiplier:       r.InitialStopAtrMultiplier,
		TrailingStopAtrMultiplier:      r.TrailingStopAtrMultiplier,
		PartialTakeProfitAtrMultiplier: r.PartialTakeProfitAtrMultiplier,
		PartialTakeProfitPercentage:    r.PartialTakeProfitPercentage,
		EnablePostOnly:                 r.EnablePostOnly,
		EnableMarketFallback:           r.EnableMarketFallback,
		EnableOrphanMonitor:            r.EnableOrphanMonitor,
		EnablePendingMonitor:           r.EnablePendingMonitor,
		EnableHeikinAshi:               r.EnableHeikinAshi,
		Enabled:                        r.Enabled,
		Status:                         entity.BotStatus(r.Status),
		BotClientOrderID:               r.BotClientOrderID,
		OrderCounter:                   r.OrderCounter,
		CreatedAt:                      r.CreatedAt,
		UpdatedAt:                      r.UpdatedAt,
	}
	if r.AuthorizedTokens != "" {
		cfg.AuthorizedTokens = strings.Split(r.AuthorizedTokens, ",")
	}
	if r.StartTime != nil {
		cfg.StartTime = *r.StartTime
	}
	if r.NextValidationAt != nil {
		cfg.NextValidationAt = *r.NextValidationAt
	}
	return cfg
}

// Create assigns botId = max+1, status=stopped, orderCounter=0, and a fresh
// random botClientOrderId, rejecting botName collisions (spec §4.1).
func (r *ConfigRepository) Create(ctx context.Context, cfg *entity.BotConfig) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bot_configs WHERE bot_name = $1)`, cfg.BotName); err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("botName %q already exists", cfg.BotName)
	}

	botClientOrderID, err := r.freshBotClientOrderID(ctx, tx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var botID int64
	if err := tx.GetContext(ctx, &botID, `SELECT COALESCE(MAX(bot_id), 0) + 1 FROM bot_configs`); err != nil {
		return 0, err
	}
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO bot_configs (
			bot_name, strategy_name, api_key, api_secret, timeframe, execution_mode,
			capital_percentage, max_open_orders, max_negative_pnl_stop_pct,
			min_profit_percentage, max_slippage_pct, enable_trailing,
			trailing_stop_activation_pct, trailing_stop_distance_pct,
			enable_hybrid_stop_strategy, initial_stop_atr_multiplier,
			trailing_stop_atr_multiplier, partial_take_profit_atr_multiplier,
			partial_take_profit_percentage, enable_post_only, enable_market_fallback,
			enable_orphan_monitor, enable_pending_monitor, enable_heikin_ashi,
			authorized_tokens, enabled, status, next_validation_at,
			bot_client_order_id, order_counter, created_at, updated_at, bot_id
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,'stopped',$27,$28,0,$29,$29,$30
		) RETURNING bot_id`,
		cfg.BotName, cfg.StrategyName, cfg.APIKey, cfg.APISecret, string(cfg.Timeframe), string(cfg.ExecutionMode),
		cfg.CapitalPercentage, cfg.MaxOpenOrders, cfg.MaxNegativePnlStopPct,
		cfg.MinProfitPercentage, cfg.MaxSlippagePct, cfg.EnableTrailing,
		cfg.TrailingStopActivationPct, cfg.TrailingStopDistancePct,
		cfg.EnableHybridStopStrategy, cfg.InitialStopAtrMultiplier,
		cfg.TrailingStopAtrMultiplier, cfg.PartialTakeProfitAtrMultiplier,
		cfg.PartialTakeProfitPercentage, cfg.EnablePostOnly, cfg.EnableMarketFallback,
		cfg.EnableOrphanMonitor, cfg.EnablePendingMonitor, cfg.EnableHeikinAshi,
		strings.Join(cfg.AuthorizedTokens, ","), cfg.Enabled, now.Add(60*time.Second),
		botClientOrderID, now, botID,
	).Scan(&botID)
	if err != nil {
		return 0, err
	}

	return botID, tx.Commit()
}

// freshBotClientOrderID generates a random int64 prefix unused by any
// existing bot (spec §4.1: "a random botClientOrderId (unused by any
// existing bot)").
func (r *ConfigRepository) freshBotClientOrderID(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	for i := 0; i < 10; i++ {
		candidate := rand.Int63n(1_000_000_000)
		var taken bool
		if err := tx.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM bot_configs WHERE bot_client_order_id = $1)`, candidate); err != nil {
			return 0, err
		}
		if !taken {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("could not allocate a free botClientOrderId after 10 attempts")
}

// Update applies a partial patch; status is never written here (spec §4.1:
// "Callers must not overwrite status through Update").
func (r *ConfigRepository) Update(ctx context.Context, botID int64, patch repository.ConfigPatch) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.BotName != nil {
		add("bot_name", *patch.BotName)
	}
	if patch.StrategyName != nil {
		add("strategy_name", *patch.StrategyName)
	}
	if patch.APIKey != nil {
		add("api_key", *patch.APIKey)
	}
	if patch.APISecret != nil {
		add("api_secret", *patch.APISecret)
	}
	if patch.Timeframe != nil {
		add("timeframe", string(*patch.Timeframe))
	}
	if patch.ExecutionMode != nil {
		add("execution_mode", string(*patch.ExecutionMode))
	}
	if patch.CapitalPercentage != nil {
		add("capital_percentage", *patch.CapitalPercentage)
	}
	if patch.MaxOpenOrders != nil {
		add("max_open_orders", *patch.MaxOpenOrders)
	}
	if patch.MaxNegativePnlStopPct != nil {
		add("max_negative_pnl_stop_pct", *patch.MaxNegativePnlStopPct)
	}
	if patch.MinProfitPercentage != nil {
		add("min_profit_percentage", *patch.MinProfitPercentage)
	}
	if patch.MaxSlippagePct != nil {
		add("max_slippage_pct", *patch.MaxSlippagePct)
	}
	if patch.EnableTrailing != nil {
		add("enable_trailing", *patch.EnableTrailing)
	}
	if patch.TrailingStopActivationPct != nil {
		add("trailing_stop_activation_pct", *patch.TrailingStopActivationPct)
	}
	if patch.TrailingStopDistancePct != nil {
		add("trailing_stop_distance_pct", *patch.TrailingStopDistancePct)
	}
	if patch.EnableHybridStopStrategy != nil {
		add("enable_hybrid_stop_strategy", *patch.EnableHybridStopStrategy)
	}
	if patch.InitialStopAtrMultiplier != nil {
		add("initial_stop_atr_multiplier", *patch.InitialStopAtrMultiplier)
	}
	if patch.TrailingStopAtrMultiplier != nil {
		add("trailing_stop_atr_multiplier", *patch.TrailingStopAtrMultiplier)
	}
	if patch.PartialTakeProfitAtrMultiplier != nil {
		add("partial_take_profit_atr_multiplier", *patch.PartialTakeProfitAtrMultiplier)
	}
	if patch.PartialTakeProfitPercentage != nil {
		add("partial_take_profit_percentage", *patch.PartialTakeProfitPercentage)
	}
	if patch.EnablePostOnly != nil {
		add("enable_post_only", *patch.EnablePostOnly)
	}
	if patch.EnableMarketFallback != nil {
		add("enable_market_fallback", *patch.EnableMarketFallback)
	}
	if patch.EnableOrphanMonitor != nil {
		add("enable_orphan_monitor", *patch.EnableOrphanMonitor)
	}
	if patch.EnablePendingMonitor != nil {
		add("enable_pending_monitor", *patch.EnablePendingMonitor)
	}
	if patch.EnableHeikinAshi != nil {
		add("enable_heikin_ashi", *patch.EnableHeikinAshi)
	}
	if patch.AuthorizedTokens != nil {
		add("authorized_tokens", strings.Join(patch.AuthorizedTokens, ","))
	}
	if patch.Enabled != nil {
		add("enabled", *patch.Enabled)
	}
	if patch.NextValidationAt != nil {
		add("next_validation_at", time.UnixMilli(*patch.NextValidationAt))
	}

	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now())
	args = append(args, botID)

	query := fmt.Sprintf(`UPDATE bot_configs SET %s WHERE bot_id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// SetStatus writes status and startTime atomically (spec §4.1).
func (r *ConfigRepository) SetStatus(ctx context.Context, botID int64, status entity.BotStatus, startTime *int64) error {
	var st *time.Time
	if startTime != nil {
		t := time.UnixMilli(*startTime)
		st = &t
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE bot_configs SET status = $1, start_time = COALESCE($2, start_time), updated_at = now() WHERE bot_id = $3`,
		string(status), st, botID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// NextOrderId atomically increments orderCounter in a single
// UPDATE...RETURNING statement, the critical section spec §5 requires.
func (r *ConfigRepository) NextOrderId(ctx context.Context, botID int64) (int64, error) {
	var counter int64
	err := r.db.QueryRowxContext(ctx,
		`UPDATE bot_configs SET order_counter = order_counter + 1, updated_at = now() WHERE bot_id = $1 RETURNING order_counter`,
		botID).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("bot %d not found", botID)
	}
	return counter, err
}

func (r *ConfigRepository) Get(ctx context.Context, botID int64) (*entity.BotConfig, error) {
	var row configRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM bot_configs WHERE bot_id = $1`, botID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bot %d not found", botID)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *ConfigRepository) GetByName(ctx context.Context, botName string) (*entity.BotConfig, error) {
	var row configRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM bot_configs WHERE bot_name = $1`, botName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bot %q not found", botName)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *ConfigRepository) GetByClientOrderId(ctx context.Context, botID, botClientOrderID int64) (*entity.BotConfig, error) {
	var row configRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM bot_configs WHERE bot_id = $1 AND bot_client_order_id = $2`, botID, botClientOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bot %d/%d not found", botID, botClientOrderID)
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *ConfigRepository) ListAll(ctx context.Context) ([]*entity.BotConfig, error) {
	var rows []configRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM bot_configs ORDER BY bot_id`); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// ListTraditional filters out strategy kinds flagged as externally managed
// (spec §4.1). ALPHA_FLOW and DEFAULT are both core-managed in this repo;
// the filter exists for future externally-orchestrated strategy kinds.
func (r *ConfigRepository) ListTraditional(ctx context.Context) ([]*entity.BotConfig, error) {
	var rows []configRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM bot_configs WHERE strategy_name NOT LIKE 'EXTERNAL_%' ORDER BY bot_id`); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// ListEnabled returns every enabled bot, used by RecoverAll (SPEC_FULL §C.1).
func (r *ConfigRepository) ListEnabled(ctx context.Context) ([]*entity.BotConfig, error) {
	var rows []configRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM bot_configs WHERE enabled = TRUE ORDER BY bot_id`); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// CountByStrategy supports the dashboard's strategy-usage view (SPEC_FULL §C.1).
func (r *ConfigRepository) CountByStrategy(ctx context.Context, strategyName string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bot_configs WHERE strategy_name = $1`, strategyName)
	return count, err
}

// Delete removes a BotConfig and cascades to its Orders, Positions,
// TrailingStates (spec §4.1, §6).
func (r *ConfigRepository) Delete(ctx context.Context, botID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM orders WHERE bot_id = $1`,
		`DELETE FROM positions WHERE bot_id = $1`,
		`DELETE FROM trailing_states WHERE bot_id = $1`,
		`DELETE FROM bot_configs WHERE bot_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, botID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ConfigRepository) MaxBotID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := r.db.GetContext(ctx, &max, `SELECT MAX(bot_id) FROM bot_configs`); err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (r *ConfigRepository) BotClientOrderIDTaken(ctx context.Context, botClientOrderID int64) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM bot_configs WHERE bot_client_order_id = $1)`, botClientOrderID)
	return taken, err
}

func toEntities(rows []configRow) []*entity.BotConfig {
	out := make([]*entity.BotConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no matching row")
	}
	return nil
}
