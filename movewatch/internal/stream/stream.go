// Package stream receives the engine output push channel: a websocket
// carrying JSON envelopes {"event": ..., "data": ...}. The client
// reconnects with exponential backoff until closed.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Events pushed by the analysis backend.
const (
	EventEngineOutput       = "engine_output"        // data: every multipv line of a depth
	EventEngineOutputSingle = "engine_output_single" // data: the best line
	EventClearOutput        = "clear_output"         // position changed
)

// Message is one pushed event.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Line decodes Data as a single engine line.
func (m Message) Line() (string, error) {
	var s string
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return "", fmt.Errorf("stream: %s data: %w", m.Event, err)
	}
	return s, nil
}

// Lines decodes Data as a list of engine lines.
func (m Message) Lines() ([]string, error) {
	var ss []string
	if err := json.Unmarshal(m.Data, &ss); err != nil {
		return nil, fmt.Errorf("stream: %s data: %w", m.Event, err)
	}
	return ss, nil
}

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "disconnected"
}

// MessageFunc receives messages on the client's read goroutine.
type MessageFunc func(Message)

type callbackEntry struct {
	id int
	fn MessageFunc
}

// Client is a reconnecting websocket reader.
type Client struct {
	url          string
	maxAttempts  int
	pingInterval time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	state   State
	cbs     []callbackEntry
	nextID  int
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAttempts bounds consecutive reconnect attempts. 0 retries forever.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithPingInterval sets the keepalive interval. Default: 30s.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the websocket at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		pingInterval: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnMessage registers fn and returns an id for RemoveMessageCallback.
func (c *Client) OnMessage(fn MessageFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.cbs = append(c.cbs, callbackEntry{id: c.nextID, fn: fn})
	return c.nextID
}

// RemoveMessageCallback unregisters a callback.
func (c *Client) RemoveMessageCallback(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.cbs {
		if e.id == id {
			c.cbs = append(c.cbs[:i], c.cbs[i+1:]...)
			return
		}
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the stream and starts reading in the background. If the
// first dial fails the error is returned and the client keeps retrying.
// Connect on a running client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	root, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = Connecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	c.wg.Add(1)
	go c.supervise(root, conn)
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", c.url, err)
	}
	return conn, nil
}

func (c *Client) supervise(root context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	attempt := 0
	for {
		if conn != nil {
			attempt = 0
			c.setState(Connected)
			c.logger.Info("stream: connected", "url", c.url)
			c.listen(root, conn)
			conn = nil
		}
		if root.Err() != nil {
			c.setState(Disconnected)
			return
		}

		attempt++
		if c.maxAttempts > 0 && attempt > c.maxAttempts {
			c.setState(Failed)
			c.logger.Error("stream: giving up", "url", c.url, "attempts", attempt-1)
			return
		}
		c.setState(Reconnecting)
		select {
		case <-root.Done():
			c.setState(Disconnected)
			return
		case <-time.After(backoffDuration(attempt)):
		}

		var err error
		if conn, err = c.dial(root); err != nil {
			c.logger.Debug("stream: reconnect failed", "attempt", attempt, "error", err)
		}
	}
}

// listen reads until the connection fails or the client is closed.
func (c *Client) listen(root context.Context, conn *websocket.Conn) {
	connCtx, stop := context.WithCancel(root)
	defer stop()
	go c.ping(connCtx, conn)

	for {
		var msg Message
		if err := wsjson.Read(connCtx, conn, &msg); err != nil {
			if root.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			c.logger.Warn("stream: read failed", "error", err)
			conn.Close(websocket.StatusGoingAway, "reconnect")
			return
		}

		c.mu.RLock()
		cbs := make([]callbackEntry, len(c.cbs))
		copy(cbs, c.cbs)
		c.mu.RUnlock()
		for _, e := range cbs {
			e.fn(msg)
		}
	}
}

func (c *Client) ping(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 && ctx.Err() == nil {
				c.logger.Warn("stream: ping failed", "error", err)
				conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Close stops the client and waits for the read goroutine to exit.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
