// Package attach keeps the move-list watcher and the overlay bound to
// whatever containers the page currently renders.
//
// The host page is a single-page app that tears down and rebuilds its
// containers independently. The Controller subscribes once to the whole
// document and, on every structural change, re-checks the two anchors:
// the move list (arm or disarm the watcher) and the overlay host (mount
// the panel if it is missing).
package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/subtree"
)

// Watcher is the subtree watcher as the controller drives it.
type Watcher interface {
	Arm(ctx context.Context, root dom.Node) error
	Disarm()
	State() subtree.State
	Root() dom.Node
}

// Overlay mounts the control panel. Ensure must be idempotent per anchor
// instance.
type Overlay interface {
	Ensure(ctx context.Context, anchor dom.Node) error
}

// Config for creating a Controller.
type Config struct {
	Document dom.Document
	Feed     dom.Feed
	Watcher  Watcher
	Overlay  Overlay // optional

	MoveList      string // move-list anchor selector
	OverlayAnchor string // overlay anchor selector; empty disables mounting

	// Post schedules notification handling on the event loop. Nil runs it
	// inline.
	Post   func(func())
	Logger *slog.Logger
}

// Status is a snapshot of the controller.
type Status struct {
	Started  bool   `json:"started"`
	Watching bool   `json:"watching"`
	Root     string `json:"root,omitempty"`
	Checks   uint64 `json:"checks"`
}

// Controller owns the whole-document subscription.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	handle dom.Handle
	gen    uint64
	checks uint64
}

// New validates cfg and returns a stopped Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Document == nil || cfg.Feed == nil || cfg.Watcher == nil {
		return nil, errors.New("attach: document, feed and watcher are required")
	}
	if cfg.MoveList == "" {
		return nil, errors.New("attach: move list selector is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}, nil
}

// Start subscribes to the whole document and checks both anchors once,
// since the page may already contain them.
func (c *Controller) Start(ctx context.Context) error {
	if c.handle != nil {
		return nil
	}
	gen := c.gen + 1
	root := c.cfg.Document.Root()
	h, err := c.cfg.Feed.Observe(root, dom.ScopeSubtree, func(dom.Batch) {
		c.cfg.Post(func() {
			if c.handle == nil || c.gen != gen {
				return
			}
			c.Check(ctx)
		})
	})
	if err != nil {
		return fmt.Errorf("attach: observe document: %w", err)
	}
	c.gen = gen
	c.handle = h
	c.logger.Info("attach: observing document", "move_list", c.cfg.MoveList, "overlay_anchor", c.cfg.OverlayAnchor)

	c.Check(ctx)
	return nil
}

// Check runs one attachment pass. A failed query leaves that anchor's
// state untouched until the next notification.
func (c *Controller) Check(ctx context.Context) {
	c.checks++
	c.checkMoveList(ctx)
	c.checkOverlay(ctx)
}

func (c *Controller) checkMoveList(ctx context.Context) {
	w := c.cfg.Watcher
	anchor, err := c.cfg.Document.Query(ctx, c.cfg.MoveList)
	if err != nil {
		c.logger.Warn("attach: query move list", "error", err)
		return
	}
	if anchor == nil {
		w.Disarm()
		return
	}
	if w.State() == subtree.Active {
		if w.Root().Key() == anchor.Key() {
			return
		}
		// Rebuilt within one batch: the old handle is bound to a node that
		// no longer renders the game.
		c.logger.Info("attach: move list replaced", "old", w.Root().Key(), "new", anchor.Key())
		w.Disarm()
	}
	if err := w.Arm(ctx, anchor); err != nil {
		c.logger.Warn("attach: arm watcher", "root", anchor.Key(), "error", err)
	}
}

func (c *Controller) checkOverlay(ctx context.Context) {
	if c.cfg.Overlay == nil || c.cfg.OverlayAnchor == "" {
		return
	}
	anchor, err := c.cfg.Document.Query(ctx, c.cfg.OverlayAnchor)
	if err != nil {
		c.logger.Warn("attach: query overlay anchor", "error", err)
		return
	}
	if anchor == nil {
		return
	}
	if err := c.cfg.Overlay.Ensure(ctx, anchor); err != nil {
		c.logger.Warn("attach: mount overlay", "anchor", anchor.Key(), "error", err)
	}
}

// Reconfigure swaps the anchor selectors and re-checks both anchors under
// the new ones. A move list that no longer matches is disarmed.
func (c *Controller) Reconfigure(ctx context.Context, moveList, overlayAnchor string) error {
	if moveList == "" {
		return errors.New("attach: move list selector is required")
	}
	c.cfg.MoveList = moveList
	c.cfg.OverlayAnchor = overlayAnchor
	c.logger.Info("attach: anchors reconfigured", "move_list", moveList, "overlay_anchor", overlayAnchor)
	if c.handle != nil {
		c.Check(ctx)
	}
	return nil
}

// Stop disposes the document subscription and disarms the watcher. The
// watcher's gate is untouched, so a later Start does not re-dispatch an
// unchanged list.
func (c *Controller) Stop() {
	if c.handle != nil {
		c.handle.Dispose()
		c.handle = nil
		c.gen++
		c.logger.Info("attach: stopped observing document")
	}
	c.cfg.Watcher.Disarm()
}

// Status returns a snapshot. Call it from the event loop.
func (c *Controller) Status() Status {
	st := Status{
		Started:  c.handle != nil,
		Watching: c.cfg.Watcher.State() == subtree.Active,
		Checks:   c.checks,
	}
	if root := c.cfg.Watcher.Root(); root != nil {
		st.Root = root.Key()
	}
	return st
}
