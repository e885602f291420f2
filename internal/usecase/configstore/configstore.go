// Package configstore implements the ConfigStore business rules on top of
// the durable repository.ConfigRepository contract (spec §4.1).
package configstore

import (
	"context"
	"fmt"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/repository"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

// KnownStrategies is the set of strategy names the core recognizes
// (SPEC_FULL §D: DEFAULT, ALPHA_FLOW). CanStart rejects any other name.
var KnownStrategies = map[string]bool{
	entity.StrategyDEFAULT:    true,
	entity.StrategyALPHAFLOW: true,
}

// Store wraps a repository.ConfigRepository with the validation and
// derived-query rules spec §4.1 requires of ConfigStore.
type Store struct {
	repo repository.ConfigRepository
	log  *logger.Logger
}

// New creates a ConfigStore business layer over repo.
func New(repo repository.ConfigRepository, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{repo: repo, log: log.WithComponent("configstore")}
}

// Create validates and delegates to the repository (spec §4.1: "assigns a
// fresh botId... Rejects when botName collides" — collision detection lives
// in the repository's transaction, this layer adds the pre-flight shape checks).
func (s *Store) Create(ctx context.Context, cfg *entity.BotConfig) (int64, error) {
	if cfg.BotName == "" {
		return 0, xerr.Config("Create", fmt.Errorf("botName is required"))
	}
	if !KnownStrategies[cfg.StrategyName] {
		return 0, xerr.Config("Create", fmt.Errorf("unknown strategy %q", cfg.StrategyName))
	}
	if cfg.CapitalPercentage <= 0 || cfg.CapitalPercentage > 100 {
		return 0, xerr.Config("Create", fmt.Errorf("capitalPercentage must be in (0,100]"))
	}
	if cfg.MaxOpenOrders < 1 {
		return 0, xerr.Config("Create", fmt.Errorf("maxOpenOrders must be >= 1"))
	}

	botID, err := s.repo.Create(ctx, cfg)
	if err != nil {
		return 0, xerr.Config("Create", err)
	}
	s.log.Info("created bot %d (%s)", botID, cfg.BotName)
	return botID, nil
}

// Update applies a partial patch (spec §4.1: status excluded, use SetStatus).
func (s *Store) Update(ctx context.Context, botID int64, patch repository.ConfigPatch) error {
	return s.repo.Update(ctx, botID, patch)
}

// SetStatus writes status (+ optional startTime) atomically.
func (s *Store) SetStatus(ctx context.Context, botID int64, status entity.BotStatus, startTime *time.Time) error {
	var millis *int64
	if startTime != nil {
		m := startTime.UnixMilli()
		millis = &m
	}
	return s.repo.SetStatus(ctx, botID, status, millis)
}

// NextOrderId returns the fully formed clientOrderId for the next submission
// (spec §4.1, GLOSSARY: "${botId}_${botClientOrderId}_${orderCounter}").
func (s *Store) NextOrderId(ctx context.Context, botID int64) (string, error) {
	cfg, err := s.repo.Get(ctx, botID)
	if err != nil {
		return "", xerr.NotFound("NextOrderId", err)
	}
	counter, err := s.repo.NextOrderId(ctx, botID)
	if err != nil {
		return "", xerr.Config("NextOrderId", err)
	}
	return cfg.NextClientOrderID(counter), nil
}

func (s *Store) Get(ctx context.Context, botID int64) (*entity.BotConfig, error) {
	cfg, err := s.repo.Get(ctx, botID)
	if err != nil {
		return nil, xerr.NotFound("Get", err)
	}
	return cfg, nil
}

func (s *Store) GetByName(ctx context.Context, botName string) (*entity.BotConfig, error) {
	return s.repo.GetByName(ctx, botName)
}

func (s *Store) GetByClientOrderId(ctx context.Context, clientOrderID string) (*entity.BotConfig, error) {
	var botID, botClientOrderID int64
	if _, err := fmt.Sscanf(clientOrderID, "%d_%d_", &botID, &botClientOrderID); err != nil {
		return nil, xerr.InvalidResponse("GetByClientOrderId", fmt.Errorf("malformed clientOrderId %q", clientOrderID))
	}
	return s.repo.GetByClientOrderId(ctx, botID, botClientOrderID)
}

func (s *Store) ListAll(ctx context.Context) ([]*entity.BotConfig, error) {
	return s.repo.ListAll(ctx)
}

func (s *Store) ListTraditional(ctx context.Context) ([]*entity.BotConfig, error) {
	return s.repo.ListTraditional(ctx)
}

func (s *Store) ListEnabled(ctx context.Context) ([]*entity.BotConfig, error) {
	return s.repo.ListEnabled(ctx)
}

func (s *Store) CountByStrategy(ctx context.Context, strategyName string) (int, error) {
	return s.repo.CountByStrategy(ctx, strategyName)
}

// Delete cascades to owned Orders/Positions/TrailingState (spec §4.1, §6).
func (s *Store) Delete(ctx context.Context, botID int64) error {
	if err := s.repo.Delete(ctx, botID); err != nil {
		return xerr.Config("Delete", err)
	}
	s.log.Info("deleted bot %d", botID)
	return nil
}

// CanStart reports whether botID is eligible to be started (spec §4.1:
// "exists, is enabled, has a valid strategy, has non-empty credentials, and
// status ∈ {stopped, error, starting}").
func (s *Store) CanStart(ctx context.Context, botID int64) (bool, error) {
	cfg, err := s.repo.Get(ctx, botID)
	if err != nil {
		return false, nil
	}
	if !cfg.Enabled {
		return false, nil
	}
	if !KnownStrategies[cfg.StrategyName] {
		return false, nil
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return false, nil
	}
	switch cfg.Status {
	case entity.BotStatusStopped, entity.BotStatusError, entity.BotStatusStarting:
		return true, nil
	default:
		return false, nil
	}
}
