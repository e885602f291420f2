package exchangeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
)

// FillStream is a WebSocket subscription to the exchange's user fill feed,
// generalizing the teacher's single wsReadLoop/handleWSMessage pattern
// (internal/infrastructure/hyperliquid/exchange.go) from a global ticker
// subscription into a per-bot fill feed (no credentials are sent). PositionTracker's
// OnFill handler is the intended consumer.
type FillStream struct {
	wsURL string
	log   *logger.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}

	handlerMu sync.RWMutex
	handlers  []func(*entity.Fill)
}

// NewFillStream creates a fill stream bound to wsURL.
func NewFillStream(wsURL string, log *logger.Logger) *FillStream {
	if log == nil {
		log = logger.Default()
	}
	return &FillStream{wsURL: wsURL, log: log.WithComponent("fillstream")}
}

// Connect dials the exchange WS endpoint and starts the read loop.
func (s *FillStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("fillstream dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.readLoop()
	return nil
}

// Disconnect closes the connection; no further handler invocations occur
// afterward.
func (s *FillStream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.connected = false
	close(s.done)
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Subscribe registers handler to receive every fill on the connection for
// the given botId/clientOrderId prefix scoping being the caller's
// responsibility (ownership filtering happens in PositionTracker per spec §4.7).
func (s *FillStream) Subscribe(handler func(*entity.Fill)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *FillStream) readLoop() {
	for {
		s.mu.RLock()
		conn := s.conn
		done := s.done
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Error("fillstream read error: %v", err)
			}
			return
		}

		s.handleMessage(message)
	}
}

func (s *FillStream) handleMessage(data []byte) {
	var msg struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Channel != "fill" {
		return
	}

	var raw struct {
		Symbol   string  `json:"symbol"`
		Side     string  `json:"side"`
		Quantity float64 `json:"quantity,string"`
		Price    float64 `json:"price,string"`
		OrderID  string  `json:"orderId"`
		ClientID string  `json:"clientId"`
		Ts       int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		return
	}

	side := entity.FillSideBid
	if raw.Side == "Ask" {
		side = entity.FillSideAsk
	}

	fill := &entity.Fill{
		Symbol:          raw.Symbol,
		Side:            side,
		Quantity:        raw.Quantity,
		Price:           raw.Price,
		ExternalOrderID: raw.OrderID,
		ClientOrderID:   raw.ClientID,
		Timestamp:       time.UnixMilli(raw.Ts),
	}

	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	for _, h := range s.handlers {
		h(fill)
	}
}
