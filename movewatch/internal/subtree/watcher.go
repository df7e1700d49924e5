// Package subtree watches one move-list element and forwards genuine
// changes of its move sequence.
//
// The Watcher is a two-state machine. Inactive holds no subscription.
// Active holds exactly one dom.Handle bound to one root; every batch
// delivered for that handle runs one pass: extract, gate, dispatch.
package subtree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/gate"
	"github.com/hazyhaar/movewatch/movewatch/internal/metrics"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// State is the watcher's lifecycle state.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Extractor reads the move sequence of a node.
type Extractor interface {
	FromNode(ctx context.Context, n dom.Node) (moves.Sequence, error)
}

// Dispatcher receives sequences the gate confirmed as changed.
type Dispatcher interface {
	Dispatch(ctx context.Context, seq moves.Sequence) error
}

// Config for creating a Watcher.
type Config struct {
	Feed       dom.Feed
	Extractor  Extractor
	Dispatcher Dispatcher
	// Gate defaults to a fresh gate. It survives disarm/arm cycles, so a
	// re-attached list with unchanged content is not dispatched again.
	Gate *gate.Gate
	// Post schedules listener work on the event loop. Nil runs it inline.
	Post    func(func())
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Watcher owns at most one subscription to a move-list subtree.
type Watcher struct {
	feed     dom.Feed
	extract  Extractor
	dispatch Dispatcher
	gate     *gate.Gate
	post     func(func())
	metrics  *metrics.Metrics
	logger   *slog.Logger

	state  State
	root   dom.Node
	handle dom.Handle
	// gen identifies the current subscription. Batches carrying an older
	// generation were queued before a disarm and are dropped.
	gen uint64
}

// New creates an Inactive Watcher.
func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.New()
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	return &Watcher{
		feed:     cfg.Feed,
		extract:  cfg.Extractor,
		dispatch: cfg.Dispatcher,
		gate:     cfg.Gate,
		post:     cfg.Post,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// State returns the current state.
func (w *Watcher) State() State { return w.state }

// Root returns the bound root, nil when Inactive.
func (w *Watcher) Root() dom.Node { return w.root }

// SetExtractor replaces the extractor used by later passes. Call it from
// the event loop.
func (w *Watcher) SetExtractor(e Extractor) {
	w.extract = e
}

// Arm subscribes to structural changes anywhere under root and runs one
// pass against its current content. Arm on an Active watcher is a no-op,
// whatever root it is given: replacing the root takes an explicit Disarm.
func (w *Watcher) Arm(ctx context.Context, root dom.Node) error {
	if w.state == Active {
		return nil
	}

	gen := w.gen + 1
	h, err := w.feed.Observe(root, dom.ScopeSubtree, func(b dom.Batch) {
		w.post(func() { w.onBatch(ctx, gen, b) })
	})
	if err != nil {
		return fmt.Errorf("subtree: observe %s: %w", root.Key(), err)
	}

	w.gen = gen
	w.state = Active
	w.root = root
	w.handle = h
	w.metrics.Arm()
	w.logger.Info("subtree: observing move list", "root", root.Key())

	w.pass(ctx)
	return nil
}

// Disarm disposes the subscription. No pass runs for the old root after
// Disarm returns, including batches already queued on the loop.
func (w *Watcher) Disarm() {
	if w.state == Inactive {
		return
	}
	key := w.root.Key()
	w.handle.Dispose()
	w.gen++
	w.state = Inactive
	w.root = nil
	w.handle = nil
	w.metrics.Disarm()
	w.logger.Info("subtree: stopped observing move list", "root", key)
}

func (w *Watcher) onBatch(ctx context.Context, gen uint64, b dom.Batch) {
	if w.state != Active || gen != w.gen {
		w.logger.Debug("subtree: dropping stale batch", "seq", b.Seq)
		return
	}
	w.pass(ctx)
}

// pass runs extract → gate → dispatch. Failures are logged; the watcher
// stays Active for the next notification.
func (w *Watcher) pass(ctx context.Context) {
	w.metrics.Pass()

	seq, err := w.extract.FromNode(ctx, w.root)
	if err != nil {
		w.metrics.ExtractFailure()
		w.logger.Warn("subtree: extraction failed", "root", w.root.Key(), "error", err)
		return
	}

	if !w.gate.Evaluate(seq) {
		w.metrics.Suppress()
		return
	}

	w.logger.Info("subtree: game moves updated", "plies", len(seq), "moves", seq.String())
	if err := w.dispatch.Dispatch(ctx, seq); err != nil {
		w.logger.Error("subtree: dispatch failed", "plies", len(seq), "error", err)
	}
}
