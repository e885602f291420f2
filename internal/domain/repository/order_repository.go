package repository

import (
	"context"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

// OrderFilter narrows OrderRepository.List (generalized from the teacher's
// single-tenant filter to also scope by owning bot, per spec §4.6).
type OrderFilter struct {
	BotID  int64
	Symbol string
	Status entity.OrderStatus
	Limit  int
}

// OrderRepository is the durable ledger of submitted orders (spec §3, §4.6).
type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByExternalID(ctx context.Context, externalOrderID string) (*entity.Order, error)
	GetByClientOrderID(ctx context.Context, clientOrderID string) (*entity.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error)
	Update(ctx context.Context, order *entity.Order) error
	DeleteByBotID(ctx context.Context, botID int64) error
}

// PositionRepository is the durable store of derived Position rows (spec §3).
type PositionRepository interface {
	GetOpen(ctx context.Context, botID int64, symbol string) (*entity.Position, error)
	Upsert(ctx context.Context, pos *entity.Position) error
	ListOpenForBot(ctx context.Context, botID int64) ([]*entity.Position, error)
	ListForBot(ctx context.Context, botID int64, since int64) ([]*entity.Position, error)
	DeleteByBotID(ctx context.Context, botID int64) error
}

// TrailingRepository is the durable store of TrailingState rows (spec §3, §4.8).
type TrailingRepository interface {
	Get(ctx context.Context, botID int64, symbol string) (*entity.TrailingState, error)
	Upsert(ctx context.Context, state *entity.TrailingState) error
	Delete(ctx context.Context, botID int64, symbol string) error
	ListForBot(ctx context.Context, botID int64) ([]*entity.TrailingState, error)
	DeleteByBotID(ctx context.Context, botID int64) error
}
