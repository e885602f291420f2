package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
)

// TrailingRepository is the sqlx-backed durable TrailingState store (spec §3, §4.8).
type TrailingRepository struct {
	db *sqlx.DB
}

var _ repository.TrailingRepository = (*TrailingRepository)(nil)

func NewTrailingRepository(db *sqlx.DB) *TrailingRepository {
	return &TrailingRepository{db: db}
}

type trailingRow struct {
	BotID              int64      `db:"bot_id"`
	Symbol             string     `db:"symbol"`
	ActiveStopOrderID  string     `db:"active_stop_order_id"`
	HighFavorablePrice float64    `db:"high_favorable_price"`
	LastTriggerPrice   float64    `db:"last_trigger_price"`
	ArmedAt            *time.Time `db:"armed_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (r trailingRow) toEntity() *entity.TrailingState {
	s := &entity.TrailingState{
		BotID:              r.BotID,
		Symbol:             r.Symbol,
		ActiveStopOrderID:  r.ActiveStopOrderID,
		HighFavorablePrice: r.HighFavorablePrice,
		LastTriggerPrice:   r.LastTriggerPrice,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.ArmedAt != nil {
		s.ArmedAt = *r.ArmedAt
	}
	return s
}

func (r *TrailingRepository) Get(ctx context.Context, botID int64, symbol string) (*entity.TrailingState, error) {
	var row trailingRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM trailing_states WHERE bot_id = $1 AND symbol = $2`, botID, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *TrailingRepository) Upsert(ctx context.Context, state *entity.TrailingState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trailing_states (bot_id, symbol, active_stop_order_id, high_favorable_price,
			last_trigger_price, armed_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (bot_id, symbol) DO UPDATE SET
			active_stop_order_id = EXCLUDED.active_stop_order_id,
			high_favorable_price = EXCLUDED.high_favorable_price,
			last_trigger_price = EXCLUDED.last_trigger_price,
			armed_at = EXCLUDED.armed_at,
			updated_at = now()`,
		state.BotID, state.Symbol, state.ActiveStopOrderID, state.HighFavorablePrice,
		state.LastTriggerPrice, nullTime(state.ArmedAt))
	return err
}

func (r *TrailingRepository) Delete(ctx context.Context, botID int64, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM trailing_states WHERE bot_id = $1 AND symbol = $2`, botID, symbol)
	return err
}

func (r *TrailingRepository) ListForBot(ctx context.Context, botID int64) ([]*entity.TrailingState, error) {
	var rows []trailingRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM trailing_states WHERE bot_id = $1`, botID); err != nil {
		return nil, err
	}
	out := make([]*entity.TrailingState, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *TrailingRepository) DeleteByBotID(ctx context.Context, botID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM trailing_states WHERE bot_id = $1`, botID)
	return err
}
