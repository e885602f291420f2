// Package exchangeclient implements the ExchangeClient contract against a
// single configurable REST+WS base URL, generalizing the teacher's
// Hyperliquid-specific client into the multi-exchange-base-URL shape
// spec §6 requires (default "https://api.backpack.exchange").
package exchangeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nyx-quant/perpsup/internal/adapter/gateway"
	"github.com/nyx-quant/perpsup/internal/domain/entity"
	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

// Config holds the client's static connection settings.
type Config struct {
	BaseURL string
	WSURL   string
}

// Client implements gateway.ExchangeClient (spec §4.2).
type Client struct {
	cfg    Config
	http   *http.Client
	signer Signer
	log    *logger.Logger

	reqMgr    *RequestManager
	posCache  *positionsCache

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

var _ gateway.ExchangeClient = (*Client)(nil)

// New creates an exchange client. baseURL defaults to
// "https://api.backpack.exchange" per spec §6 when empty.
func New(cfg Config, signer Signer, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.backpack.exchange"
	}
	if signer == nil {
		signer = HMACSigner{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 15 * time.Second},
		signer:   signer,
		log:      log.WithComponent("exchangeclient"),
		reqMgr:   NewRequestManager(),
		posCache: newPositionsCache(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ForceReset drops any coalesced in-flight reads (spec §4.2, §9).
func (c *Client) ForceReset() { c.reqMgr.ForceReset() }

// limiterFor returns the per-credential client-side rate limiter, a courtesy
// shaper independent of MonitorEngine's reactive backoff (spec §5: "MonitorEngine's
// exponential backoff is the sole [reactive] policy; ExchangeClient does not
// retry on 429" — this limiter only shapes outbound pacing, never retries).
func (c *Client) limiterFor(creds gateway.Credentials) *rate.Limiter {
	key := credHash(creds)
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	l, ok := c.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(8), 16) // ~8 req/s, burst 16
		c.limiters[key] = l
	}
	return l
}

// doRequest performs one HTTP round trip with classification into xerr
// kinds and a single automatic retry on timeout with a larger timeout and a
// fresh signing timestamp (spec §4.2 request policy).
func (c *Client) doRequest(ctx context.Context, method, path string, creds *gateway.Credentials, body interface{}) ([]byte, error) {
	if creds != nil {
		if err := c.limiterFor(*creds).Wait(ctx); err != nil {
			return nil, xerr.Transient("rateLimiterWait", err)
		}
	}

	resp, err := c.attempt(ctx, method, path, creds, body, 15*time.Second)
	if err != nil && xerr.Is(err, xerr.KindTransient) && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// One retry with a larger timeout and a freshly generated signing
		// timestamp (spec §4.2: "on HTTP timeout, one automatic retry with a
		// larger timeout and freshly generated signing timestamp").
		resp, err = c.attempt(ctx, method, path, creds, body, 20*time.Second)
	}
	return resp, err
}

func (c *Client) attempt(ctx context.Context, method, path string, creds *gateway.Credentials, body interface{}, timeout time.Duration) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, xerr.Config("marshalRequest", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, xerr.Config("newRequest", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if creds != nil {
		if err := c.signer.Sign(req, *creds, time.Now()); err != nil {
			return nil, xerr.Config("sign", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, xerr.Transient("doRequest", err)
		}
		return nil, xerr.Transient("doRequest", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerr.Transient("readBody", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, xerr.RateLimited("httpStatus", fmt.Errorf("429: %s", respBody))
	case resp.StatusCode == http.StatusNotFound:
		return nil, xerr.NotFound("httpStatus", fmt.Errorf("404: %s", respBody))
	case resp.StatusCode >= 500:
		return nil, xerr.Transient("httpStatus", fmt.Errorf("%d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return nil, xerr.Config("httpStatus", fmt.Errorf("%d: %s", resp.StatusCode, respBody))
	}

	return respBody, nil
}

// GetMarkets returns the exchange's tradable symbols as tickers (unauthenticated).
func (c *Client) GetMarkets(ctx context.Context) ([]*entity.Ticker, error) {
	v, err, _ := c.reqMgr.Do("GET /markets", func() (interface{}, error) {
		body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/markets", nil, nil)
		if err != nil {
			return nil, err
		}
		var raw []struct {
			Symbol string `json:"symbol"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, xerr.InvalidResponse("unmarshalMarkets", err)
		}
		out := make([]*entity.Ticker, 0, len(raw))
		for _, r := range raw {
			out = append(out, &entity.Ticker{Symbol: r.Symbol, Timestamp: time.Now()})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*entity.Ticker), nil
}

// GetTickers returns 24h ticker snapshots (unauthenticated).
func (c *Client) GetTickers(ctx context.Context, window time.Duration) ([]*entity.Ticker, error) {
	key := fmt.Sprintf("GET /tickers?window=%s", window)
	v, err, _ := c.reqMgr.Do(key, func() (interface{}, error) {
		body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/tickers", nil, nil)
		if err != nil {
			return nil, err
		}
		var raw []wireTicker
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, xerr.InvalidResponse("unmarshalTickers", err)
		}
		out := make([]*entity.Ticker, 0, len(raw))
		for _, r := range raw {
			out = append(out, r.toEntity())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*entity.Ticker), nil
}

type wireTicker struct {
	Symbol    string  `json:"symbol"`
	BidPrice  float64 `json:"bidPrice,string"`
	AskPrice  float64 `json:"askPrice,string"`
	LastPrice float64 `json:"lastPrice,string"`
	Volume    float64 `json:"volume,string"`
}

func (w wireTicker) toEntity() *entity.Ticker {
	return &entity.Ticker{
		Symbol:    w.Symbol,
		BidPrice:  w.BidPrice,
		AskPrice:  w.AskPrice,
		LastPrice: w.LastPrice,
		Volume24h: w.Volume,
		Timestamp: time.Now(),
	}
}

// GetKlines returns OHLCV candles (unauthenticated).
func (c *Client) GetKlines(ctx context.Context, symbol string, interval entity.Timeframe, limit int) ([]*entity.Candle, error) {
	key := fmt.Sprintf("GET /klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
	v, err, _ := c.reqMgr.Do(key, func() (interface{}, error) {
		path := fmt.Sprintf("/api/v1/klines?symbol=%s&interval=%s&limit=%d", symbol, interval, limit)
		body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			return nil, err
		}
		var raw []struct {
			Open   float64 `json:"open,string"`
			High   float64 `json:"high,string"`
			Low    float64 `json:"low,string"`
			Close  float64 `json:"close,string"`
			Volume float64 `json:"volume,string"`
			Start  int64   `json:"start"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, xerr.InvalidResponse("unmarshalKlines", err)
		}
		out := make([]*entity.Candle, 0, len(raw))
		for _, r := range raw {
			out = append(out, &entity.Candle{
				Symbol:    symbol,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
				Timestamp: time.UnixMilli(r.Start),
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*entity.Candle), nil
}

// GetAccount returns authenticated balances and limits.
func (c *Client) GetAccount(ctx context.Context, creds gateway.Credentials) (*gateway.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account", &creds, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Balances map[string]float64 `json:"balances"`
		Leverage float64            `json:"leverage"`
		FeeRate  float64            `json:"feeRate"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalAccount", err)
	}
	return &gateway.Account{Balances: raw.Balances, Leverage: raw.Leverage, FeeRate: raw.FeeRate}, nil
}

// GetCollateral returns authenticated collateral figures.
func (c *Client) GetCollateral(ctx context.Context, creds gateway.Credentials) (*gateway.Collateral, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/collateral", &creds, nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Total     float64 `json:"totalCollateral"`
		Available float64 `json:"availableMargin"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalCollateral", err)
	}
	return &gateway.Collateral{TotalCollateral: raw.Total, AvailableMargin: raw.Available}, nil
}

// GetOpenOrders returns authenticated open orders, optionally scoped to a symbol.
func (c *Client) GetOpenOrders(ctx context.Context, creds gateway.Credentials, symbol string, marketType gateway.MarketType) ([]*entity.Order, error) {
	path := fmt.Sprintf("/api/v1/orders?marketType=%s", marketType)
	if symbol != "" {
		path += "&symbol=" + symbol
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, &creds, nil)
	if err != nil {
		return nil, err
	}
	var raw []wireOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalOpenOrders", err)
	}
	out := make([]*entity.Order, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toEntity())
	}
	return out, nil
}

type wireOrder struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"clientId"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity,string"`
	Price         float64 `json:"price,string"`
	Status        string  `json:"status"`
	TriggerPrice  float64 `json:"triggerPrice,string"`
	ReduceOnly    bool    `json:"reduceOnly"`
	Timestamp     int64   `json:"timestamp"`
}

func (w wireOrder) toEntity() *entity.Order {
	side := entity.SideBuy
	if w.Side == "Ask" {
		side = entity.SideSell
	}
	ot := entity.OrderTypeLimit
	if w.ReduceOnly {
		if w.TriggerPrice > 0 {
			ot = entity.OrderTypeReduceOnlyStop
		} else {
			ot = entity.OrderTypeReduceOnlyLimit
		}
	}
	return &entity.Order{
		ExternalOrderID: w.ID,
		ClientOrderID:   w.ClientID,
		Symbol:          w.Symbol,
		Side:            side,
		OrderType:       ot,
		Quantity:        w.Quantity,
		Price:           w.Price,
		Status:          entity.OrderStatusPending,
		Timestamp:       time.UnixMilli(w.Timestamp),
	}
}

// GetOpenPositions returns authenticated open positions, rejecting a
// response shaped like an order book (spec §4.2 defensive check).
func (c *Client) GetOpenPositions(ctx context.Context, creds gateway.Credentials) ([]*gateway.ExchangePosition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/positions", &creds, nil)
	if err != nil {
		return nil, err
	}

	if looksLikeOrderBook(body) {
		c.log.Error("GetOpenPositions received an order-book-shaped payload, discarding")
		return nil, xerr.InvalidResponse("GetOpenPositions", fmt.Errorf("payload looks like an order book, not positions"))
	}

	var raw []struct {
		Symbol        string  `json:"symbol"`
		NetQuantity   float64 `json:"netQuantity,string"`
		AvgEntryPrice float64 `json:"avgEntryPrice,string"`
		MarkPrice     float64 `json:"markPrice,string"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalPositions", err)
	}
	out := make([]*gateway.ExchangePosition, 0, len(raw))
	for _, r := range raw {
		out = append(out, &gateway.ExchangePosition{
			Symbol:        r.Symbol,
			NetQuantity:   r.NetQuantity,
			AvgEntryPrice: r.AvgEntryPrice,
			MarkPrice:     r.MarkPrice,
		})
	}
	return out, nil
}

// looksLikeOrderBook implements spec §4.2's defensive shape check: presence
// of asks/bids with absence of symbol/netQuantity at the top level.
func looksLikeOrderBook(body []byte) bool {
	var probe struct {
		Asks        json.RawMessage `json:"asks"`
		Bids        json.RawMessage `json:"bids"`
		Symbol      json.RawMessage `json:"symbol"`
		NetQuantity json.RawMessage `json:"netQuantity"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	hasBookFields := probe.Asks != nil || probe.Bids != nil
	hasPositionFields := probe.Symbol != nil || probe.NetQuantity != nil
	return hasBookFields && !hasPositionFields
}

// GetPositionsCached returns the last successful GetOpenPositions result for
// up to 10s per credential; on RateLimited it falls back to the stale value
// if present (spec §4.2).
func (c *Client) GetPositionsCached(ctx context.Context, creds gateway.Credentials) ([]*gateway.ExchangePosition, error) {
	key := credHash(creds)
	if fresh, ok := c.posCache.fresh(key); ok {
		return fresh, nil
	}

	positions, err := c.GetOpenPositions(ctx, creds)
	if err != nil {
		if xerr.Is(err, xerr.KindRateLimited) {
			if stale, ok := c.posCache.get(key); ok {
				c.log.Warn("GetPositionsCached serving stale positions after RateLimited")
				return stale, nil
			}
		}
		return nil, err
	}

	c.posCache.set(key, positions)
	return positions, nil
}

// GetFillHistory returns authenticated, paginated fill history.
func (c *Client) GetFillHistory(ctx context.Context, creds gateway.Credentials, symbol string, from, to time.Time, limit int, marketType gateway.MarketType) ([]*gateway.FillRecord, error) {
	path := fmt.Sprintf("/api/v1/fills?from=%d&to=%d&limit=%d&marketType=%s",
		from.UnixMilli(), to.UnixMilli(), limit, marketType)
	if symbol != "" {
		path += "&symbol=" + symbol
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, &creds, nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol   string  `json:"symbol"`
		Side     string  `json:"side"`
		Quantity float64 `json:"quantity,string"`
		Price    float64 `json:"price,string"`
		OrderID  string  `json:"orderId"`
		ClientID string  `json:"clientId"`
		Ts       int64   `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalFills", err)
	}
	out := make([]*gateway.FillRecord, 0, len(raw))
	for _, r := range raw {
		side := entity.FillSideBid
		if r.Side == "Ask" {
			side = entity.FillSideAsk
		}
		out = append(out, &gateway.FillRecord{
			Symbol:          r.Symbol,
			Side:            side,
			Quantity:        r.Quantity,
			Price:           r.Price,
			ExternalOrderID: r.OrderID,
			ClientOrderID:   r.ClientID,
			Timestamp:       time.UnixMilli(r.Ts),
		})
	}
	return out, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, creds gateway.Credentials, payload gateway.OrderPayload) (*gateway.PlacedOrder, error) {
	req := map[string]interface{}{
		"symbol":        payload.Symbol,
		"side":          sideWire(payload.Side),
		"orderType":     string(payload.OrderType),
		"quantity":      payload.Quantity,
		"price":         payload.Price,
		"reduceOnly":    payload.ReduceOnly,
		"postOnly":      payload.PostOnly,
		"triggerPrice":  payload.TriggerPrice,
		"clientId":      payload.ClientOrderID,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order", &creds, req)
	if err != nil {
		return nil, err
	}
	var raw struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
		Ts       int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.InvalidResponse("unmarshalPlaceOrder", err)
	}
	return &gateway.PlacedOrder{
		ExternalOrderID:   raw.ID,
		ClientOrderID:     raw.ClientID,
		ExchangeCreatedAt: time.UnixMilli(raw.Ts),
	}, nil
}

func sideWire(s entity.Side) string {
	if s == entity.SideSell {
		return "Ask"
	}
	return "Bid"
}

// CancelOrder cancels an order; a 404/NotFound is treated as success by
// callers doing idempotent reconciliation (spec §7 NotFound semantics), but
// this method still surfaces the classified error for the caller to decide.
func (c *Client) CancelOrder(ctx context.Context, creds gateway.Credentials, symbol, orderID string) error {
	path := fmt.Sprintf("/api/v1/order?symbol=%s&orderId=%s", symbol, orderID)
	_, err := c.doRequest(ctx, http.MethodDelete, path, &creds, nil)
	return err
}
