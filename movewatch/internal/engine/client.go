// Package engine talks to the analysis backend: the engine control
// endpoints and the format of the analysis lines it streams.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/movewatch/horosafe"
)

// Status values reported by GET /status.
const (
	Running = "running"
	Stopped = "stopped"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("engine: unexpected status")

// Client calls GET /status, POST /start and POST /stop.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.client.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Status string `json:"status"`
	} `json:"data"`
}

// Status returns the engine status ("running", "stopped", ...).
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status")
	if err != nil {
		return "", err
	}
	if resp.Data.Status == "" {
		return "", fmt.Errorf("engine: status: missing data.status")
	}
	return resp.Data.Status, nil
}

// Start asks the backend to launch the engine.
func (c *Client) Start(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/start")
	if err != nil {
		return err
	}
	c.logger.Info("engine: started", "message", resp.Message)
	return nil
}

// Stop asks the backend to stop the engine.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/stop")
	if err != nil {
		return err
	}
	c.logger.Info("engine: stopped", "message", resp.Message)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: %s %s: %w", method, path, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("engine: %s %s: read: %w", method, path, err)
	}
	var out response
	var jerr error
	if len(bytes.TrimSpace(data)) > 0 {
		jerr = json.Unmarshal(data, &out)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if jerr == nil && out.Error != "" {
			return nil, fmt.Errorf("%w %d on %s: %s", ErrStatus, resp.StatusCode, path, out.Error)
		}
		return nil, fmt.Errorf("%w %d on %s", ErrStatus, resp.StatusCode, path)
	}
	if jerr != nil {
		return nil, fmt.Errorf("engine: %s %s: decode: %w", method, path, jerr)
	}
	return &out, nil
}
