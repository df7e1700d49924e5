// Package overlay mounts the engine panel into the host page and keeps it
// up to date: controls for the engine, and the best line streamed by the
// analysis backend.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
	"github.com/hazyhaar/movewatch/movewatch/internal/metrics"
	"github.com/hazyhaar/movewatch/movewatch/internal/stream"
)

// Surface is the page as the panel manipulates it. Implementations must be
// safe for concurrent use: control clicks and stream messages arrive on
// their own goroutines.
type Surface interface {
	Exists(ctx context.Context, id string) (bool, error)
	AppendHTML(ctx context.Context, parentSelector, markup string) error
	SetText(ctx context.Context, id, text string) error
	OnClick(ctx context.Context, id string, fn func()) error
	Alert(ctx context.Context, msg string) error
}

// Engine is the engine control API.
type Engine interface {
	Status(ctx context.Context) (string, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config for creating a Panel.
type Config struct {
	Surface Surface
	Engine  Engine // optional: without it the controls are inert
	// Host selects the element the panel is appended to.
	Host    string
	Timeout time.Duration // per control request, default 10s
	// Async runs control work off the caller's goroutine. Default: go fn().
	Async   func(func())
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Panel owns the mounted panel.
type Panel struct {
	surface Surface
	engine  Engine
	timeout time.Duration
	async   func(func())
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	host    string
	anchor  string // key of the anchor the panel was mounted for
	mounted bool
	running bool // last known engine status
	last    engine.Info
}

// New creates an unmounted Panel.
func New(cfg Config) (*Panel, error) {
	if cfg.Surface == nil {
		return nil, errors.New("overlay: surface is required")
	}
	if cfg.Host == "" {
		return nil, errors.New("overlay: host selector is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Async == nil {
		cfg.Async = func(fn func()) { go fn() }
	}
	return &Panel{
		surface: cfg.Surface,
		engine:  cfg.Engine,
		host:    cfg.Host,
		timeout: cfg.Timeout,
		async:   cfg.Async,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Ensure mounts the panel if the page does not already contain it. A panel
// left in the page by an earlier binding is adopted: its controls are
// rebound to this Panel and nothing is appended.
func (p *Panel) Ensure(ctx context.Context, anchor dom.Node) error {
	present, err := p.surface.Exists(ctx, IDOutput)
	if err != nil {
		return fmt.Errorf("overlay: lookup panel: %w", err)
	}
	if present {
		if _, ok := p.Mounted(); ok {
			return nil
		}
		p.markMounted(anchor)
		p.logger.Info("overlay: panel adopted", "anchor", anchor.Key())
		return p.bind(ctx)
	}

	host := p.Host()
	if err := p.surface.AppendHTML(ctx, host, Markup()); err != nil {
		return fmt.Errorf("overlay: append panel: %w", err)
	}
	p.markMounted(anchor)
	p.metrics.OverlayMount()
	p.logger.Info("overlay: panel mounted", "anchor", anchor.Key(), "host", host)
	return p.bind(ctx)
}

func (p *Panel) markMounted(anchor dom.Node) {
	p.mu.Lock()
	p.anchor = anchor.Key()
	p.mounted = true
	p.last = engine.Info{}
	p.mu.Unlock()
}

// bind wires the controls and labels the toggle from the engine status.
func (p *Panel) bind(ctx context.Context) error {
	if p.engine == nil {
		return nil
	}
	if err := p.surface.OnClick(ctx, IDToggle, p.toggle); err != nil {
		return fmt.Errorf("overlay: bind toggle: %w", err)
	}
	if err := p.surface.OnClick(ctx, IDCheck, p.checkState); err != nil {
		return fmt.Errorf("overlay: bind check: %w", err)
	}
	p.async(p.refresh)
	return nil
}

// SetHost changes the element the panel is appended to. It takes effect
// at the next mount.
func (p *Panel) SetHost(host string) error {
	if host == "" {
		return errors.New("overlay: host selector is required")
	}
	p.mu.Lock()
	p.host = host
	p.mu.Unlock()
	return nil
}

// Host returns the host selector.
func (p *Panel) Host() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.host
}

// Mounted reports whether a panel was mounted, and for which anchor.
func (p *Panel) Mounted() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.anchor, p.mounted
}

// Running returns the last known engine status.
func (p *Panel) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Last returns the last rendered engine line.
func (p *Panel) Last() engine.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Render writes one engine line into the panel.
func (p *Panel) Render(ctx context.Context, info engine.Info) error {
	pv := info.PV
	if pv == "" {
		pv = InitialPV
	}
	if err := p.setTexts(ctx,
		IDDepth, engine.FormatDepth(info),
		IDScore, engine.FormatScore(info),
		IDPV, pv,
	); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = info
	p.mu.Unlock()
	return nil
}

// Reset restores the initial texts.
func (p *Panel) Reset(ctx context.Context) error {
	if err := p.setTexts(ctx,
		IDDepth, InitialDepth,
		IDScore, InitialScore,
		IDPV, InitialPV,
	); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = engine.Info{}
	p.mu.Unlock()
	return nil
}

func (p *Panel) setTexts(ctx context.Context, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := p.surface.SetText(ctx, kv[i], kv[i+1]); err != nil {
			return fmt.Errorf("overlay: set #%s: %w", kv[i], err)
		}
	}
	return nil
}

// HandleStream applies one pushed message. Messages arriving before the
// panel is mounted are ignored.
func (p *Panel) HandleStream(msg stream.Message) {
	if _, ok := p.Mounted(); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	switch msg.Event {
	case stream.EventEngineOutputSingle:
		line, err := msg.Line()
		if err != nil {
			p.logger.Warn("overlay: bad engine line", "error", err)
			return
		}
		p.metrics.EngineLine()
		if err := p.Render(ctx, engine.ParseLine(line)); err != nil {
			p.logger.Warn("overlay: render engine line", "error", err)
		}
	case stream.EventClearOutput:
		if err := p.Reset(ctx); err != nil {
			p.logger.Warn("overlay: reset panel", "error", err)
		}
	}
}
