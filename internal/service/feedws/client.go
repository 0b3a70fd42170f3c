package feedws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"PivotScan/internal/domain/models"
	drepo "PivotScan/internal/domain/repository"
	svcmetrics "PivotScan/internal/service/metrics"

	"github.com/gorilla/websocket"
)

// Config carries the upstream feed endpoint and cadence settings.
type Config struct {
	APIKey         string
	URL            string
	Instruments    []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client adapts the upstream trade WebSocket to the TickStream
// interface. The channels Read returns stay open across reconnects;
// after an error the read loop parks until Reconnect restores the
// connection, so the consumer keeps a single pair of channels for the
// life of the context.
type Client struct {
	cfg Config

	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(cfg Config) drepo.TickStream {
	svcmetrics.Register()
	return &Client{cfg: cfg}
}

// Connect dials the feed endpoint.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.cfg.URL, c.cfg.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	log.Printf("feed: connected")
	return nil
}

// Subscribe requests trades for every configured instrument.
func (c *Client) Subscribe(ctx context.Context) error {
	conn, ok := c.current()
	if !ok {
		return fmt.Errorf("feed not connected")
	}
	for _, inst := range c.cfg.Instruments {
		req := map[string]string{"type": "subscribe", "symbol": inst}
		c.writeMu.Lock()
		err := conn.WriteJSON(req)
		c.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", inst, err)
		}
		log.Printf("feed: subscribed %s", inst)
	}
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read starts the ping and read loops and returns their channels. A
// full tick buffer drops the tick and counts it rather than stalling
// the socket.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	go c.pingLoop(ctx)
	go c.readLoop(ctx, ticks, errs)

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn, ok := c.current(); ok {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.PingMessage, nil)
				c.writeMu.Unlock()
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, ticks chan<- *models.Tick, errs chan<- error) {
	defer close(ticks)
	defer close(errs)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, ok := c.current()
		if !ok {
			if !c.awaitReconnect(ctx) {
				return
			}
			continue
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			select {
			case errs <- fmt.Errorf("feed read: %w", err):
			default:
			}
			if !c.awaitReconnect(ctx) {
				return
			}
			continue
		}

		c.fanOut(frame, ticks)
	}
}

// awaitReconnect parks until the consumer has re-established the
// connection. Returns false when the context ends first.
func (c *Client) awaitReconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
			if c.IsConnected() {
				return true
			}
		}
	}
}

func (c *Client) fanOut(frame []byte, ticks chan<- *models.Tick) {
	var m wsMessage
	if err := json.Unmarshal(frame, &m); err != nil {
		return // not a trade frame
	}
	if m.Type != "trade" {
		return
	}
	for _, tr := range m.Data {
		t := &models.Tick{
			Instrument: tr.S,
			Timestamp:  time.UnixMilli(tr.T),
			Price:      tr.P,
			Volume:     tr.V,
		}
		select {
		case ticks <- t:
		default:
			svcmetrics.FeedDrops.WithLabelValues(tr.S).Inc()
		}
	}
}

// Reconnect tears the connection down, waits out the configured delay,
// and dials and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close drops the connection. The read loop parks until Reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() (*websocket.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.connected && c.conn != nil
}
