package exchangeclient

import (
	"sync"
	"time"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
)

// positionsCacheTTL is how long a successful GetOpenPositions result may be
// served from cache by GetPositionsCached (spec §4.2: "up to 10s per
// credential").
const positionsCacheTTL = 10 * time.Second

type positionsCacheEntry struct {
	positions []*gateway.ExchangePosition
	fetchedAt time.Time
}

// positionsCache is the per-credential cache the teacher's global mutable
// cache pattern is replaced with, per spec §9 ("the per-credential positions
// cache... moved into the ExchangeClient instance").
type positionsCache struct {
	mu      sync.Mutex
	entries map[string]positionsCacheEntry
}

func newPositionsCache() *positionsCache {
	return &positionsCache{entries: make(map[string]positionsCacheEntry)}
}

func (c *positionsCache) get(key string) ([]*gateway.ExchangePosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.positions, true
}

func (c *positionsCache) fresh(key string) ([]*gateway.ExchangePosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Since(e.fetchedAt) > positionsCacheTTL {
		return nil, false
	}
	return e.positions, true
}

func (c *positionsCache) set(key string, positions []*gateway.ExchangePosition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = positionsCacheEntry{positions: positions, fetchedAt: time.Now()}
}
