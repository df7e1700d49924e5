// Package observer is the browser-backed implementation of the dom
// boundary. One Observer serves one rod page: it answers selector queries
// over CDP, mirrors the node tree from DOM events to decide which
// subscriptions a mutation concerns, and delivers debounced batches.
package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
)

// ErrNotStarted is returned by operations that need a started Observer.
var ErrNotStarted = errors.New("observer: not started")

// Config for creating an Observer.
type Config struct {
	Page           *rod.Page
	DebounceWindow time.Duration
	DebounceMax    int
	Logger         *slog.Logger
}

type subscription struct {
	root  string // node key
	scope dom.Scope
	fn    dom.Listener
	live  atomic.Bool
}

// Observer implements dom.Document, dom.Feed and the overlay surface for a
// single page.
type Observer struct {
	page   *rod.Page
	logger *slog.Logger
	tree   *nodeTree

	rawCh   chan []pending
	resetCh chan struct{}
	deb     *debouncer

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	seq    uint64
	clicks map[string]func()
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Observer. Start must be called before use.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	o := &Observer{
		page:    cfg.Page,
		logger:  cfg.Logger,
		tree:    newNodeTree(),
		rawCh:   make(chan []pending, 4096),
		resetCh: make(chan struct{}, 1),
		subs:    make(map[uint64]*subscription),
		clicks:  make(map[string]func()),
	}
	o.deb = newDebouncer(debounceConfig{Window: cfg.DebounceWindow, MaxBuffer: cfg.DebounceMax}, o.onFlush)
	return o
}

// Start enables DOM tracking, subscribes to CDP events and starts the
// delivery loop. It returns once the event subscriptions are in place.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	if err := (proto.DOMEnable{}).Call(o.page); err != nil {
		cancel()
		return fmt.Errorf("observer: DOM.enable: %w", err)
	}
	if err := o.initTracking(); err != nil {
		cancel()
		return fmt.Errorf("observer: init DOM tracking: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: clickBinding}).Call(o.page); err != nil {
		o.logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}

	domEvents := o.page.Context(ctx).EachEvent(
		o.onInserted,
		o.onRemoved,
		o.onSetChildren,
		func(*proto.DOMDocumentUpdated) {
			select {
			case o.resetCh <- struct{}{}:
			default:
			}
		},
	)
	clickEvents := o.page.Context(ctx).EachEvent(o.onBinding)
	go domEvents()
	go clickEvents()
	go o.loop(ctx)
	return nil
}

// Stop cancels the event subscriptions and waits for the delivery loop.
// Records still buffered are dropped.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tracked returns the number of nodes in the mirror.
func (o *Observer) Tracked() int { return o.tree.size() }

func (o *Observer) initTracking() error {
	// Without depth -1 CDP does not report mutations on deep nodes.
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(o.page)
	if err != nil {
		return fmt.Errorf("DOM.getDocument: %w", err)
	}
	o.tree.build(doc.Root)
	o.logger.Info("observer: DOM tracking initialised", "nodes", o.tree.size())
	return nil
}

func (o *Observer) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ps := <-o.rawCh:
			o.deb.add(ps...)
		case <-o.deb.timerC():
			o.deb.flush()
		case <-o.resetCh:
			o.handleReset()
		}
	}
}

// handleReset runs after the document was replaced: pending records refer
// to the old tree, the mirror is rebuilt, and every subscriber is told.
func (o *Observer) handleReset() {
	o.logger.Info("observer: document updated (doc_reset)")
	o.deb.flush()
	if err := o.initTracking(); err != nil {
		o.logger.Error("observer: re-init DOM tracking failed", "error", err)
	}
	rec := []dom.Record{{Op: dom.OpDocReset, Parent: documentKey}}
	o.mu.Lock()
	var all []pending
	for id := range o.subs {
		all = append(all, pending{sub: id, rec: rec[0]})
	}
	o.mu.Unlock()
	if len(all) > 0 {
		o.onFlush(all)
	}
}

func (o *Observer) onFlush(buf []pending) {
	order, by := group(buf)
	for _, id := range order {
		o.mu.Lock()
		s := o.subs[id]
		o.seq++
		seq := o.seq
		o.mu.Unlock()
		if s == nil || !s.live.Load() {
			continue
		}
		s.fn(dom.Batch{Seq: seq, Records: by[id]})
	}
}

func (o *Observer) onInserted(e *proto.DOMChildNodeInserted) {
	// Coverage is decided on the parent, which is already tracked.
	o.enqueue(e.ParentNodeID, dom.OpInsert, e.Node.NodeName)
	o.tree.add(e.ParentNodeID, e.Node)
	if e.Node.ChildNodeCount != nil && *e.Node.ChildNodeCount > 0 && len(e.Node.Children) == 0 {
		go o.requestChildren(e.Node.NodeID)
	}
}

func (o *Observer) onRemoved(e *proto.DOMChildNodeRemoved) {
	o.enqueue(e.ParentNodeID, dom.OpRemove, "")
	o.tree.remove(e.NodeID)
}

func (o *Observer) onSetChildren(e *proto.DOMSetChildNodes) {
	o.tree.setChildren(e.ParentID, e.Nodes)
}

func (o *Observer) requestChildren(id proto.DOMNodeID) {
	depth := -1
	if err := (proto.DOMRequestChildNodes{NodeID: id, Depth: &depth, Pierce: true}).Call(o.page); err != nil {
		o.logger.Debug("observer: request child nodes", "node", id, "error", err)
	}
}

// enqueue addresses one record to every subscription covering parent.
func (o *Observer) enqueue(parent proto.DOMNodeID, op dom.Op, tag string) {
	key, ok := o.tree.key(parent)
	if !ok {
		return
	}
	rec := dom.Record{Op: op, Parent: key, Tag: strings.ToLower(tag)}

	o.mu.Lock()
	var ps []pending
	for id, s := range o.subs {
		if o.covers(s, parent) {
			ps = append(ps, pending{sub: id, rec: rec})
		}
	}
	o.mu.Unlock()
	if len(ps) == 0 {
		return
	}
	select {
	case o.rawCh <- ps:
	default:
		o.logger.Warn("observer: mutation buffer full, records dropped", "parent", key, "subscriptions", len(ps))
	}
}

func (o *Observer) covers(s *subscription, parent proto.DOMNodeID) bool {
	var root proto.DOMNodeID
	if s.root == documentKey {
		root = o.tree.document()
	} else {
		b, err := parseKey(s.root)
		if err != nil {
			return false
		}
		id, ok := o.tree.lookup(b)
		if !ok {
			return false
		}
		root = id
	}
	if s.scope == dom.ScopeNode {
		return parent == root
	}
	return o.tree.within(parent, root)
}

// Root returns the whole-document node.
func (o *Observer) Root() dom.Node { return node{o: o, key: documentKey} }

// Query returns the first element matching selector, or nil.
func (o *Observer) Query(ctx context.Context, selector string) (dom.Node, error) {
	doc := o.tree.document()
	if doc == 0 {
		return nil, ErrNotStarted
	}
	res, err := proto.DOMQuerySelector{NodeID: doc, Selector: selector}.Call(o.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("observer: query %q: %w", selector, err)
	}
	if res.NodeID == 0 {
		return nil, nil
	}
	if key, ok := o.tree.key(res.NodeID); ok {
		return node{o: o, key: key}, nil
	}
	desc, err := proto.DOMDescribeNode{NodeID: res.NodeID}.Call(o.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("observer: describe %q: %w", selector, err)
	}
	return node{o: o, key: backendKey(desc.Node.BackendNodeID)}, nil
}

// Observe subscribes fn to child list changes under root.
func (o *Observer) Observe(root dom.Node, scope dom.Scope, fn dom.Listener) (dom.Handle, error) {
	n, ok := root.(node)
	if !ok || n.o != o {
		return nil, fmt.Errorf("observer: node %q does not belong to this page", root.Key())
	}
	if n.key != documentKey {
		if _, err := parseKey(n.key); err != nil {
			return nil, err
		}
	}
	s := &subscription{root: n.key, scope: scope, fn: fn}
	s.live.Store(true)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return nil, ErrNotStarted
	}
	o.nextID++
	id := o.nextID
	o.subs[id] = s
	o.logger.Debug("observer: subscribed", "root", n.key, "scope", scope.String(), "id", id)
	return handle{o: o, id: id, s: s}, nil
}

type handle struct {
	o  *Observer
	id uint64
	s  *subscription
}

func (h handle) Dispose() {
	h.s.live.Store(false)
	h.o.mu.Lock()
	delete(h.o.subs, h.id)
	h.o.mu.Unlock()
}

type node struct {
	o   *Observer
	key string
}

func (n node) Key() string { return n.key }

// Tree serialises the node in the page and parses it. The document node
// yields a parsed document.
func (n node) Tree(ctx context.Context) (*html.Node, error) {
	page := n.o.page.Context(ctx)
	if n.key == documentKey {
		res, err := page.Eval(`() => document.documentElement.outerHTML`)
		if err != nil {
			return nil, fmt.Errorf("observer: get DOM: %w", err)
		}
		return html.Parse(strings.NewReader(res.Value.Str()))
	}
	b, err := parseKey(n.key)
	if err != nil {
		return nil, err
	}
	res, err := proto.DOMGetOuterHTML{BackendNodeID: b}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("observer: outer HTML of %s: %w", n.key, err)
	}
	el, err := extract.ParseElement(res.OuterHTML)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("observer: %s is not an element", n.key)
	}
	return el, nil
}
