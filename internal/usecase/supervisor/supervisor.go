// Package supervisor owns the set of live BotRunners and drives the bot
// lifecycle state machine (spec §4.3).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
	"github.com/nyx-quant/perpsup/internal/usecase/botrunner"
	"github.com/nyx-quant/perpsup/internal/usecase/configstore"
	"github.com/nyx-quant/perpsup/internal/usecase/eventbus"
)

// restartDelay is the short pause RestartBot inserts between stop and start
// (spec §4.3: "StopBot then StartBot with a short delay").
const restartDelay = 2 * time.Second

// Supervisor tracks one Runner per live bot and enforces the lifecycle
// state machine from spec §4.3.
type Supervisor struct {
	mu      sync.Mutex
	runners map[int64]*botrunner.Runner

	configs *configstore.Store
	events  *eventbus.Bus
	newRunner func(cfg *entity.BotConfig) (*botrunner.Runner, error)
	log     *logger.Logger
}

// New constructs a Supervisor. newRunner builds a fresh Runner for a given
// BotConfig snapshot (injected so the dependency set botrunner.New needs
// stays assembled by the caller, not duplicated here).
func New(configs *configstore.Store, events *eventbus.Bus, newRunner func(cfg *entity.BotConfig) (*botrunner.Runner, error), log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.Default()
	}
	return &Supervisor{
		runners:   make(map[int64]*botrunner.Runner),
		configs:   configs,
		events:    events,
		newRunner: newRunner,
		log:       log.WithComponent("supervisor"),
	}
}

// StartBot transitions stopped/error -> starting -> (running on first tick).
// Fails on an already-running bot unless forceRestart is set (spec §4.3).
func (s *Supervisor) StartBot(ctx context.Context, botID int64, forceRestart bool) error {
	s.mu.Lock()
	_, alreadyRunning := s.runners[botID]
	s.mu.Unlock()

	if alreadyRunning && !forceRestart {
		return xerr.Config("StartBot", fmt.Errorf("bot %d is already running", botID))
	}
	if alreadyRunning && forceRestart {
		s.stopRunner(botID, true)
	}

	cfg, err := s.configs.Get(ctx, botID)
	if err != nil {
		return err
	}
	ok, err := s.configs.CanStart(ctx, botID)
	if err != nil {
		return err
	}
	if !ok {
		return xerr.Config("StartBot", fmt.Errorf("bot %d is not eligible to start", botID))
	}

	if err := s.configs.SetStatus(ctx, botID, entity.BotStatusStarting, nil); err != nil {
		return err
	}
	s.events.Publish(eventbus.BotStarting, map[string]interface{}{"botId": botID})

	runner, err := s.newRunner(cfg)
	if err != nil {
		s.configs.SetStatus(ctx, botID, entity.BotStatusError, nil)
		return err
	}

	s.mu.Lock()
	s.runners[botID] = runner
	s.mu.Unlock()

	runner.Start(ctx)
	s.events.Publish(eventbus.BotStarted, map[string]interface{}{"botId": botID})
	return nil
}

// StopBot is idempotent: it is safe to call even if no in-memory runner
// exists for botID (spec §4.3). updateStatus false is used by ShutdownAll.
func (s *Supervisor) StopBot(ctx context.Context, botID int64, updateStatus bool) error {
	s.stopRunner(botID, false)

	if updateStatus {
		if err := s.configs.SetStatus(ctx, botID, entity.BotStatusStopped, nil); err != nil {
			return err
		}
		s.events.Publish(eventbus.BotStopped, map[string]interface{}{"botId": botID})
	}
	return nil
}

func (s *Supervisor) stopRunner(botID int64, silent bool) {
	s.mu.Lock()
	runner, ok := s.runners[botID]
	if ok {
		delete(s.runners, botID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	runner.Stop()
	if !silent {
		s.log.Info("stopped bot %d", botID)
	}
}

// RestartBot guarantees the old runner's timers are cancelled before the
// new runner installs its own (spec §4.3).
func (s *Supervisor) RestartBot(ctx context.Context, botID int64) error {
	s.stopRunner(botID, true)
	time.Sleep(restartDelay)
	return s.StartBot(ctx, botID, true)
}

// RecoverAll launches every traditional enabled bot whose persisted status
// is running/starting/error (spec §4.3). A "running" or "error" status left
// over from before the process restarted is not a live runner, so it is
// normalized to stopped first — CanStart's status set never includes
// running, and StartBot immediately re-raises starting anyway.
func (s *Supervisor) RecoverAll(ctx context.Context) error {
	bots, err := s.configs.ListTraditional(ctx)
	if err != nil {
		return err
	}
	for _, cfg := range bots {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Status {
		case entity.BotStatusRunning, entity.BotStatusError:
			if err := s.configs.SetStatus(ctx, cfg.BotID, entity.BotStatusStopped, nil); err != nil {
				s.log.Error("RecoverAll: bot %d failed to normalize status: %v", cfg.BotID, err)
				continue
			}
		case entity.BotStatusStarting:
		default:
			continue
		}
		if err := s.StartBot(ctx, cfg.BotID, true); err != nil {
			s.log.Error("RecoverAll: bot %d failed to start: %v", cfg.BotID, err)
		}
	}
	return nil
}

// ShutdownAll stops every running bot without mutating persisted status
// (spec §4.3: a later RecoverAll must see the pre-shutdown state).
func (s *Supervisor) ShutdownAll(ctx context.Context) {
	s.mu.Lock()
	botIDs := make([]int64, 0, len(s.runners))
	for id := range s.runners {
		botIDs = append(botIDs, id)
	}
	s.mu.Unlock()

	for _, id := range botIDs {
		_ = s.StopBot(ctx, id, false)
	}
}

// RunningBotIDs returns the bots currently owned by a live Runner.
func (s *Supervisor) RunningBotIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.runners))
	for id := range s.runners {
		ids = append(ids, id)
	}
	return ids
}

// Runners returns a snapshot of the live Runner set, keyed by bot id.
// Used by the metrics poller to read each bot's monitor loops (SPEC_FULL
// §D); callers must not mutate the map.
func (s *Supervisor) Runners() map[int64]*botrunner.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]*botrunner.Runner, len(s.runners))
	for id, r := range s.runners {
		out[id] = r
	}
	return out
}
