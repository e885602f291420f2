package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
)

// OrderRepository is the sqlx-backed durable order ledger (spec §4.6).
type OrderRepository struct {
	db *sqlx.DB
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderRow struct {
	ExternalOrderID   string     `db:"external_order_id"`
	BotID             int64      `db:"bot_id"`
	ClientOrderID     string     `db:"client_order_id"`
	Symbol            string     `db:"symbol"`
	Side              string     `db:"side"`
	OrderType         string     `db:"order_type"`
	Quantity          float64    `db:"quantity"`
	Price             float64    `db:"price"`
	Status            string     `db:"status"`
	Timestamp         time.Time  `db:"timestamp"`
	ExchangeCreatedAt *time.Time `db:"exchange_created_at"`
	ClosePrice        *float64   `db:"close_price"`
	CloseQuantity     *float64   `db:"close_quantity"`
	CloseTime         *time.Time `db:"close_time"`
	CloseType         *string    `db:"close_type"`
	PnL               *float64   `db:"pnl"`
	PnLPct            *float64   `db:"pnl_pct"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r orderRow) toEntity() *entity.Order {
	o := &entity.Order{
		ExternalOrderID: r.ExternalOrderID,
		BotID:           r.BotID,
		ClientOrderID:   r.ClientOrderID,
		Symbol:          r.Symbol,
		Side:            entity.Side(r.Side),
		OrderType:       entity.OrderType(r.OrderType),
		Quantity:        r.Quantity,
		Price:           r.Price,
		Status:          entity.OrderStatus(r.Status),
		Timestamp:       r.Timestamp,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ExchangeCreatedAt != nil {
		o.ExchangeCreatedAt = *r.ExchangeCreatedAt
	}
	if r.ClosePrice != nil {
		o.ClosePrice = *r.ClosePrice
	}
	if r.CloseQuantity != nil {
		o.CloseQuantity = *r.CloseQuantity
	}
	if r.CloseTime != nil {
		o.CloseTime = *r.CloseTime
	}
	if r.CloseType != nil {
		o.CloseType = entity.CloseType(*r.CloseType)
	}
	if r.PnL != nil {
		o.PnL = *r.PnL
	}
	if r.PnLPct != nil {
		o.PnLPct = *r.PnLPct
	}
	return o
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			external_order_id, bot_id, client_order_id, symbol, side, order_type,
			quantity, price, status, timestamp, exchange_created_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())`,
		order.ExternalOrderID, order.BotID, order.ClientOrderID, order.Symbol, string(order.Side),
		string(order.OrderType), order.Quantity, order.Price, string(order.Status), order.Timestamp,
		nullTime(order.ExchangeCreatedAt))
	return err
}

func (r *OrderRepository) GetByExternalID(ctx context.Context, externalOrderID string) (*entity.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM orders WHERE external_order_id = $1`, externalOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %q not found", externalOrderID)
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *OrderRepository) GetByClientOrderID(ctx context.Context, clientOrderID string) (*entity.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM orders WHERE client_order_id = $1`, clientOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %q not found", clientOrderID)
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	query := `SELECT * FROM orders WHERE bot_id = $1`
	args := []interface{}{filter.BotID}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		query += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*entity.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $1, close_price = $2, close_quantity = $3, close_time = $4,
			close_type = $5, pnl = $6, pnl_pct = $7, exchange_created_at = COALESCE($8, exchange_created_at),
			external_order_id = COALESCE($11, external_order_id),
			updated_at = now()
		WHERE external_order_id = $9 OR client_order_id = $10`,
		string(order.Status), nullFloat(order.ClosePrice), nullFloat(order.CloseQuantity),
		nullTime(order.CloseTime), nullString(string(order.CloseType)), nullFloat(order.PnL),
		nullFloat(order.PnLPct), nullTime(order.ExchangeCreatedAt),
		orderKey(order), order.ClientOrderID, nullString(order.ExternalOrderID))
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func orderKey(o *entity.Order) string {
	if o.ExternalOrderID != "" {
		return o.ExternalOrderID
	}
	return o.ClientOrderID
}

func (r *OrderRepository) DeleteByBotID(ctx context.Context, botID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE bot_id = $1`, botID)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullFloat(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
