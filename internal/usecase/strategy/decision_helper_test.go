package strategy

import "github.com/nyx-quant/perpsup/internal/domain/service"

// decisionSignals unwraps a Decision for tests that previously asserted
// directly on a signal slice.
func decisionSignals(d *service.Decision) []*service.Signal {
	if d == nil {
		return nil
	}
	return d.Signals
}
