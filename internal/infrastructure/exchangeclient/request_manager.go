package exchangeclient

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// RequestManager coalesces identical in-flight unauthenticated reads so a
// burst of bots asking for the same klines/tickers only pays the exchange
// once (spec §4.2, §9: "the process-wide request coalescer is moved into
// the ExchangeClient instance"). One RequestManager lives per ExchangeClient.
type RequestManager struct {
	mu    sync.RWMutex
	group *singleflight.Group
}

// NewRequestManager creates a coalescer with a fresh singleflight group.
func NewRequestManager() *RequestManager {
	return &RequestManager{group: new(singleflight.Group)}
}

// Do coalesces concurrent calls sharing key, returning the shared result to
// every caller.
func (m *RequestManager) Do(key string, fn func() (interface{}, error)) (interface{}, error, bool) {
	m.mu.RLock()
	g := m.group
	m.mu.RUnlock()
	return g.Do(key, fn)
}

// ForceReset drops the current singleflight group and starts a fresh one, so
// a caller about to start a new bot cycle never waits on a stale coalesced
// request (spec §4.2: "the caller may ask for forceReset() before starting a
// bot cycle").
func (m *RequestManager) ForceReset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.group = new(singleflight.Group)
}
