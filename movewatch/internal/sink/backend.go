package sink

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
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// ErrMalformedResponse is returned when the backend answers 2xx with a body
// that is not JSON.
var ErrMalformedResponse = errors.New("backend: malformed response")

// Backend POSTs {"moves": [...]} to <base>/moves. It never retries: a failed
// dispatch is only resent if the sequence changes again.
type Backend struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// BackendOption configures a Backend sink.
type BackendOption func(*Backend)

// WithBackendClient replaces the HTTP client.
func WithBackendClient(c *http.Client) BackendOption {
	return func(b *Backend) { b.client = c }
}

// WithBackendTimeout sets the per-request timeout. Default: 10s.
func WithBackendTimeout(d time.Duration) BackendOption {
	return func(b *Backend) { b.client.Timeout = d }
}

// WithBackendLogger sets a custom logger.
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBackend creates a Backend sink for the service at baseURL.
func NewBackend(baseURL string, opts ...BackendOption) *Backend {
	b := &Backend{
		url:    strings.TrimRight(baseURL, "/") + "/moves",
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// URL returns the endpoint the sink posts to.
func (b *Backend) URL() string { return b.url }

func (b *Backend) Send(ctx context.Context, u moves.Update) error {
	body, err := json.Marshal(moves.NewPayload(u.Moves))
	if err != nil {
		return fmt.Errorf("backend: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: post moves: %w", err)
	}
	defer resp.Body.Close()

	data, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend: status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(data)) > 0 && !json.Valid(data) {
		return ErrMalformedResponse
	}
	b.logger.Debug("backend: moves posted", "plies", len(u.Moves), "status", resp.StatusCode)
	return nil
}

func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
