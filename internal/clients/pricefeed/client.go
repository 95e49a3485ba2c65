// Package pricefeed receives (symbol, price) pairs from an upstream websocket feed
// and hands them to the price propagator.
package pricefeed

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

const (
	dialTimeout      = 30 * time.Second
	propagateTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute

	readLimit = 1 << 20
)

// ErrDisabled is returned by Start when no feed URL is configured
var ErrDisabled = errors.New("price feed disabled: no URL configured")

// Client keeps one websocket connection to the price feed open and reconnects with
// exponential backoff when it drops
type Client struct {
	url        string
	httpClient *http.Client
	updater    domain.PriceUpdater
	log        zerolog.Logger

	mu        sync.RWMutex
	connected bool
	lastFrame time.Time
	received  int64

	cancel context.CancelFunc
	done   chan struct{}

	// baseDelay is overridable in tests
	baseDelay time.Duration
}

// createHTTP1Client forces HTTP/1.1; proxies that negotiate HTTP/2 via ALPN break the upgrade
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewClient creates a feed client. An empty url yields a disabled client.
func NewClient(url string, updater domain.PriceUpdater, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: createHTTP1Client(),
		updater:    updater,
		log:        log.With().Str("component", "price_feed").Logger(),
		baseDelay:  baseReconnectDelay,
	}
}

// Enabled reports whether a feed URL is configured
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Start launches the connection loop in the background
func (c *Client) Start(ctx context.Context) error {
	if !c.Enabled() {
		c.log.Info().Msg("Price feed URL not configured, feed disabled")
		return ErrDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)

	c.log.Info().Str("url", c.url).Msg("Price feed client started")
	return nil
}

// Stop closes the connection and waits for the loop to exit
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Info().Msg("Price feed client stopped")
}

// Status is a point-in-time view of the feed connection
type Status struct {
	LastFrame time.Time `json:"last_frame,omitempty"`
	URL       string    `json:"url"`
	Received  int64     `json:"received"`
	Enabled   bool      `json:"enabled"`
	Connected bool      `json:"connected"`
}

// Status reports the current connection state
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		LastFrame: c.lastFrame,
		URL:       c.url,
		Received:  c.received,
		Enabled:   c.Enabled(),
		Connected: c.connected,
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		conn, err := c.connect(ctx)
		if err == nil {
			attempt = 0
			c.readMessages(ctx, conn)
		} else if ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("Price feed connection failed")
		}

		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := c.calculateBackoff(attempt)
		c.log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Reconnecting to price feed")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial price feed: %w", err)
	}
	conn.SetReadLimit(readLimit)

	c.setConnected(true)
	c.log.Info().Msg("Connected to price feed")
	return conn, nil
}

func (c *Client) readMessages(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.setConnected(false)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.log.Info().Int("status", int(status)).Msg("Price feed closed connection")
			case ctx.Err() != nil:
				c.log.Debug().Msg("Price feed read cancelled")
			default:
				c.log.Error().Err(err).Msg("Unexpected price feed read error")
			}
			return
		}

		if err := c.handleMessage(ctx, msgType, message); err != nil {
			c.log.Error().Err(err).Int("bytes", len(message)).Msg("Failed to handle price feed frame")
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msgType websocket.MessageType, message []byte) error {
	updates, rejected, err := DecodeFrame(msgType, message)
	if err != nil {
		return err
	}
	for _, f := range rejected {
		c.log.Warn().Str("symbol", f.Symbol).Str("error", f.Message).Msg("Rejected price feed item")
	}

	c.mu.Lock()
	c.lastFrame = time.Now()
	c.received += int64(len(updates))
	c.mu.Unlock()

	if len(updates) == 0 {
		return nil
	}

	propCtx, cancel := context.WithTimeout(ctx, propagateTimeout)
	defer cancel()

	result := c.updater.PropagateBatch(propCtx, updates)
	if !result.OK() {
		c.log.Warn().
			Int("updates", len(updates)).
			Int("updated", len(result.Updated)).
			Int("failures", len(result.Failures)).
			Msg("Price feed frame applied with failures")
		return nil
	}

	c.log.Debug().
		Int("updates", len(updates)).
		Int("updated", len(result.Updated)).
		Msg("Price feed frame applied")
	return nil
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// calculateBackoff doubles the delay per attempt up to maxReconnectDelay
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// DecodeFrame turns one feed frame into price updates.
// Text frames carry JSON and binary frames carry msgpack. Either encoding holds a
// single {"symbol", "price"} object or an array of them. Each item is validated on
// its own: invalid items come back as rejected pairs and never drop the valid ones.
// An error means the frame as a whole could not be read.
func DecodeFrame(msgType websocket.MessageType, data []byte) ([]domain.PriceUpdate, []domain.PropagationFailure, error) {
	var payload interface{}

	switch msgType {
	case websocket.MessageText:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, nil, fmt.Errorf("failed to decode JSON frame: %w", err)
		}
	case websocket.MessageBinary:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.UseLooseInterfaceDecoding(true)
		if err := dec.Decode(&payload); err != nil {
			return nil, nil, fmt.Errorf("failed to decode msgpack frame: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported frame type %v", msgType)
	}

	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
	default:
		return nil, nil, fmt.Errorf("expected object or array frame, got %T", payload)
	}

	updates := make([]domain.PriceUpdate, 0, len(items))
	rejected := make([]domain.PropagationFailure, 0)
	for i, item := range items {
		update, failure, ok := decodeUpdate(i, item)
		if !ok {
			rejected = append(rejected, failure)
			continue
		}
		updates = append(updates, update)
	}
	return updates, rejected, nil
}

func decodeUpdate(index int, item interface{}) (domain.PriceUpdate, domain.PropagationFailure, bool) {
	fields, ok := item.(map[string]interface{})
	if !ok {
		return domain.PriceUpdate{}, domain.InvalidPair("", fmt.Sprintf("item %d: expected object, got %T", index, item)), false
	}

	symbol, _ := fields["symbol"].(string)
	if domain.NormalizeSymbol(symbol) == "" {
		return domain.PriceUpdate{}, domain.InvalidPair("", fmt.Sprintf("item %d: missing symbol", index)), false
	}

	raw, ok := fields["price"]
	if !ok {
		return domain.PriceUpdate{}, domain.InvalidPair(symbol, fmt.Sprintf("missing price for %s", symbol)), false
	}
	price, err := decodePrice(raw)
	if err != nil {
		return domain.PriceUpdate{}, domain.InvalidPair(symbol, fmt.Sprintf("invalid price for %s: %v", symbol, err)), false
	}
	if price.IsNegative() {
		return domain.PriceUpdate{}, domain.InvalidPair(symbol, fmt.Sprintf("negative price for %s", symbol)), false
	}

	return domain.NewPriceUpdate(symbol, price), domain.PropagationFailure{}, true
}

func decodePrice(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return decimal.Decimal{}, fmt.Errorf("price %d out of range", v)
		}
		return decimal.NewFromInt(int64(v)), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported price type %T", raw)
}
