package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/usecase/eventbus"
)

// hub fans eventbus.Bus events out to every connected dashboard WebSocket
// client (spec §4.9). One subscriber id is held against the bus for the
// hub's lifetime; per-socket delivery is bridged through wsClient.send.
type hub struct {
	events *eventbus.Bus
	log    *logger.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]bool

	subID   string
	busCh   <-chan eventbus.Event
	stopCh  chan struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan eventbus.Event
}

func newHub(events *eventbus.Bus, log *logger.Logger) *hub {
	return &hub{
		events:  events,
		log:     log,
		clients: make(map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stopCh: make(chan struct{}),
	}
}

// start subscribes to the event bus and begins the broadcast loop.
func (h *hub) start() {
	h.subID, h.busCh = h.events.Subscribe()
	go h.run()
}

func (h *hub) stop() {
	close(h.stopCh)
	h.events.Unsubscribe(h.subID)

	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
}

func (h *hub) run() {
	for {
		select {
		case <-h.stopCh:
			return
		case evt, ok := <-h.busCh:
			if !ok {
				return
			}
			h.broadcast(evt)
		}
	}
}

func (h *hub) broadcast(evt eventbus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.log.Warn("httpapi: ws client send buffer full, dropping event")
		}
	}
}

// serveWS upgrades an HTTP request to a dashboard socket and immediately
// sends CONNECTION_ESTABLISHED, since the shared bus subscription does not
// synthesize it per-client (spec §4.9).
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("httpapi: ws upgrade: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan eventbus.Event, 64)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	c.send <- eventbus.Event{Type: eventbus.ConnectionEstablished, Timestamp: time.Now()}

	go h.readPump(c)
	go h.writePump(c)
}

func (h *hub) readPump(c *wsClient) {
	defer h.disconnect(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) disconnect(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}
