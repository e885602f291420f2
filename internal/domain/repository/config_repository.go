package repository

import (
	"context"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

// ConfigPatch is a partial update over BotConfig fields (spec §4.1 Update).
// A nil pointer field means "leave unchanged". Status is deliberately absent:
// status transitions must go through SetStatus.
type ConfigPatch struct {
	BotName                        *string
	StrategyName                   *string
	APIKey                         *string
	APISecret                      *string
	Timeframe                      *entity.Timeframe
	ExecutionMode                  *entity.ExecutionMode
	CapitalPercentage              *float64
	MaxOpenOrders                  *int
	MaxNegativePnlStopPct          *float64
	MinProfitPercentage            *float64
	MaxSlippagePct                 *float64
	EnableTrailing                 *bool
	TrailingStopActivationPct      *float64
	TrailingStopDistancePct        *float64
	EnableHybridStopStrategy       *bool
	InitialStopAtrMultiplier       *float64
	TrailingStopAtrMultiplier      *float64
	PartialTakeProfitAtrMultiplier *float64
	PartialTakeProfitPercentage    *float64
	EnablePostOnly                 *bool
	EnableMarketFallback           *bool
	EnableOrphanMonitor            *bool
	EnablePendingMonitor           *bool
	EnableHeikinAshi               *bool
	AuthorizedTokens               []string
	Enabled                        *bool
	NextValidationAt               *int64 // unix millis, nil = unchanged
}

// ConfigRepository is the durable persistence contract for BotConfig
// (spec §4.1). ConfigStore is the business-rule layer built on top of this.
type ConfigRepository interface {
	Create(ctx context.Context, cfg *entity.BotConfig) (int64, error)
	Update(ctx context.Context, botID int64, patch ConfigPatch) error
	SetStatus(ctx context.Context, botID int64, status entity.BotStatus, startTime *int64) error
	NextOrderId(ctx context.Context, botID int64) (int64, error)

	Get(ctx context.Context, botID int64) (*entity.BotConfig, error)
	GetByName(ctx context.Context, botName string) (*entity.BotConfig, error)
	GetByClientOrderId(ctx context.Context, botID, botClientOrderID int64) (*entity.BotConfig, error)
	ListAll(ctx context.Context) ([]*entity.BotConfig, error)
	ListTraditional(ctx context.Context) ([]*entity.BotConfig, error)
	ListEnabled(ctx context.Context) ([]*entity.BotConfig, error)
	CountByStrategy(ctx context.Context, strategyName string) (int, error)
	Delete(ctx context.Context, botID int64) error

	MaxBotID(ctx context.Context) (int64, error)
	BotClientOrderIDTaken(ctx context.Context, botClientOrderID int64) (bool, error)
}
