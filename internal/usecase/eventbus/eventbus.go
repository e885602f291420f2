// Package eventbus is the process-local fan-out of lifecycle events to
// subscribers such as a dashboard WebSocket fan-out (spec §4.9).
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
)

// EventType enumerates the typed events publishers emit (spec §4.9).
type EventType string

const (
	BotStarting          EventType = "BOT_STARTING"
	BotStarted           EventType = "BOT_STARTED"
	BotStopped           EventType = "BOT_STOPPED"
	BotExecutionSuccess  EventType = "BOT_EXECUTION_SUCCESS"
	BotExecutionError    EventType = "BOT_EXECUTION_ERROR"
	DecisionAnalysis     EventType = "DECISION_ANALYSIS"
	TrailingStopUpdate   EventType = "TRAILING_STOP_UPDATE"
	OrphanOrdersCleanup  EventType = "ORPHAN_ORDERS_CLEANUP"
	PendingOrdersUpdate  EventType = "PENDING_ORDERS_UPDATE"
	TakeProfitUpdate     EventType = "TAKE_PROFIT_UPDATE"
	ConnectionEstablished EventType = "CONNECTION_ESTABLISHED"
)

// Event is one published message; Payload carries event-specific data
// (e.g. botId, error text, cancelled count).
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// subscriberQueueSize bounds each subscriber's channel; when full the
// oldest message is dropped rather than blocking the publisher (spec §4.9).
const subscriberQueueSize = 256

type subscriber struct {
	id string
	ch chan Event
}

// Bus is the bounded, non-blocking fan-out.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  *logger.Logger

	dropCount int64
}

// New creates an empty event bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Default()
	}
	return &Bus{subs: make(map[string]*subscriber), log: log.WithComponent("eventbus")}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The bus sends nothing on subscribe: it never synthesizes
// CONNECTION_ESTABLISHED; callers that fan out over WebSocket send it
// themselves.
func (b *Bus) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	sub := &subscriber{id: id, ch: make(chan Event, subscriberQueueSize)}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers evt to every subscriber, never blocking: a full queue
// drops its oldest entry to make room (spec §4.9: "core loops never block on
// publishing").
func (b *Bus) Publish(eventType EventType, payload map[string]interface{}) {
	evt := Event{Type: eventType, Timestamp: time.Now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			select {
			case <-sub.ch:
				b.dropCount++
			default:
			}
			select {
			case sub.ch <- evt:
			default:
				b.log.Warn("eventbus: subscriber %s still full after drop, dropping publish", sub.id)
			}
		}
	}
}

// DropCount returns the number of messages dropped for slow subscribers
// (feeds internal/infrastructure/metrics).
func (b *Bus) DropCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropCount
}

// SubscriberCount returns the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
