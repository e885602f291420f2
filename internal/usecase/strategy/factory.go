package strategy

import (
	"fmt"
	"sync"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/domain/service"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

// Factory implements service.StrategyFactory over the set of strategies
// this repo carries concretely (spec §1: strategyName is "an enum over the
// set registered by the Strategy collaborator"). BotRunner.New asks it for
// a fresh instance per bot so strategy-local state (cooldowns, trailing
// highs) is never shared across bots.
type Factory struct {
	mu        sync.RWMutex
	builders  map[string]func() service.Strategy
}

// NewFactory registers the two strategies this repo ships: DEFAULT (mean
// reversion) and ALPHA_FLOW (aggregated AI signal).
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]func() service.Strategy)}
	f.Register(entity.StrategyDEFAULT, func() service.Strategy { return NewMeanReversionStrategy() })
	f.Register(entity.StrategyALPHAFLOW, func() service.Strategy { return NewAISignalStrategy() })
	return f
}

// Register adds or replaces the builder for a strategy name. Exposed so a
// host process can add further strategies without this package knowing
// about them.
func (f *Factory) Register(name string, builder func() service.Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = builder
}

// Create returns a fresh Strategy instance for name, or a Config error if
// name is not registered (spec §7 "Config/Precondition: ... unknown
// strategy").
func (f *Factory) Create(name string) (service.Strategy, error) {
	f.mu.RLock()
	builder, ok := f.builders[name]
	f.mu.RUnlock()
	if !ok {
		return nil, xerr.Config("Create", fmt.Errorf("unknown strategy %q", name))
	}
	return builder(), nil
}

// List returns the currently registered strategy names.
func (f *Factory) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	return names
}
