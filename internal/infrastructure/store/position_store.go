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

// PositionRepository is the sqlx-backed durable Position store (spec §3, §4.7).
type PositionRepository struct {
	db *sqlx.DB
}

var _ repository.PositionRepository = (*PositionRepository)(nil)

func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

type positionRow struct {
	ID              int64     `db:"id"`
	BotID           int64     `db:"bot_id"`
	Symbol          string    `db:"symbol"`
	Side            string    `db:"side"`
	EntryPrice      float64   `db:"entry_price"`
	InitialQuantity float64   `db:"initial_quantity"`
	CurrentQuantity float64   `db:"current_quantity"`
	PnL             float64   `db:"pnl"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r positionRow) toEntity() *entity.Position {
	return &entity.Position{
		ID:              r.ID,
		BotID:           r.BotID,
		Symbol:          r.Symbol,
		Side:            entity.PositionSide(r.Side),
		EntryPrice:      r.EntryPrice,
		InitialQuantity: r.InitialQuantity,
		CurrentQuantity: r.CurrentQuantity,
		PnL:             r.PnL,
		Status:          entity.PositionStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// GetOpen returns the latest OPEN/PARTIALLY_CLOSED row for (botId, symbol),
// the uniqueness invariant from spec §3.
func (r *PositionRepository) GetOpen(ctx context.Context, botID int64, symbol string) (*entity.Position, error) {
	var row positionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM positions
		WHERE bot_id = $1 AND symbol = $2 AND status IN ('OPEN','PARTIALLY_CLOSED')
		ORDER BY created_at DESC LIMIT 1`, botID, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// Upsert inserts a new position (ID == 0) or updates an existing one.
func (r *PositionRepository) Upsert(ctx context.Context, pos *entity.Position) error {
	if pos.ID == 0 {
		return r.db.QueryRowxContext(ctx, `
			INSERT INTO positions (bot_id, symbol, side, entry_price, initial_quantity,
				current_quantity, pnl, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now()) RETURNING id`,
			pos.BotID, pos.Symbol, string(pos.Side), pos.EntryPrice, pos.InitialQuantity,
			pos.CurrentQuantity, pos.PnL, string(pos.Status)).Scan(&pos.ID)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET side=$1, entry_price=$2, initial_quantity=$3, current_quantity=$4,
			pnl=$5, status=$6, updated_at=now() WHERE id=$7`,
		string(pos.Side), pos.EntryPrice, pos.InitialQuantity, pos.CurrentQuantity,
		pos.PnL, string(pos.Status), pos.ID)
	return err
}

func (r *PositionRepository) ListOpenForBot(ctx context.Context, botID int64) ([]*entity.Position, error) {
	var rows []positionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM positions WHERE bot_id = $1 AND status IN ('OPEN','PARTIALLY_CLOSED')
		ORDER BY symbol`, botID)
	if err != nil {
		return nil, err
	}
	return toPositionEntities(rows), nil
}

func (r *PositionRepository) ListForBot(ctx context.Context, botID int64, since int64) ([]*entity.Position, error) {
	var rows []positionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM positions WHERE bot_id = $1 AND created_at >= $2 ORDER BY created_at`,
		botID, time.UnixMilli(since))
	if err != nil {
		return nil, err
	}
	return toPositionEntities(rows), nil
}

func (r *PositionRepository) DeleteByBotID(ctx context.Context, botID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE bot_id = $1`, botID)
	return err
}

func toPositionEntities(rows []positionRow) []*entity.Position {
	out := make([]*entity.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out
}
