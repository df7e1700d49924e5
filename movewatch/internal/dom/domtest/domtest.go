// Package domtest provides an in-memory document implementing dom.Document,
// dom.Feed and the overlay surface, so tests can drive movewatch with
// synthetic structural changes and no browser.
//
// Notifications are delivered synchronously on the goroutine that caused
// them. A mutation made by a listener is queued and delivered after the
// current listener returns, like a browser event loop.
package domtest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
)

// ErrDetached is returned when reading a node no longer in the document.
var ErrDetached = errors.New("domtest: node detached from document")

// Document is a mutable in-memory document.
type Document struct {
	mu   sync.Mutex
	doc  *html.Node
	keys map[*html.Node]string
	next int

	subs    map[int]*subscription
	nextSub int
	seq     uint64

	queue      []delivery
	delivering bool

	observeErr error
	observed   int

	clicks map[string]func()
	alerts []string
}

type subscription struct {
	root  *html.Node
	scope dom.Scope
	fn    dom.Listener
}

type delivery struct {
	id    int
	batch dom.Batch
}

// New parses markup as a full HTML document.
func New(markup string) (*Document, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("domtest: parse: %w", err)
	}
	return &Document{
		doc:    doc,
		keys:   make(map[*html.Node]string),
		subs:   make(map[int]*subscription),
		clicks: make(map[string]func()),
	}, nil
}

// MustNew is New for tests with constant markup.
func MustNew(markup string) *Document {
	d, err := New(markup)
	if err != nil {
		panic(err)
	}
	return d
}

// node adapts an *html.Node of this document to dom.Node.
type node struct {
	d *Document
	n *html.Node
}

func (nd node) Key() string { return nd.d.key(nd.n) }

func (nd node) Tree(context.Context) (*html.Node, error) {
	nd.d.mu.Lock()
	defer nd.d.mu.Unlock()
	if !nd.d.attached(nd.n) {
		return nil, ErrDetached
	}
	return clone(nd.n), nil
}

func (d *Document) key(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == d.doc {
		return "document"
	}
	k, ok := d.keys[n]
	if !ok {
		d.next++
		k = fmt.Sprintf("node-%d", d.next)
		d.keys[n] = k
	}
	return k
}

func (d *Document) attached(n *html.Node) bool {
	for a := n; a != nil; a = a.Parent {
		if a == d.doc {
			return true
		}
	}
	return false
}

// Root implements dom.Document.
func (d *Document) Root() dom.Node { return node{d: d, n: d.doc} }

// Query implements dom.Document.
func (d *Document) Query(_ context.Context, selector string) (dom.Node, error) {
	s, err := extract.Compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	n := s.First(d.doc)
	d.mu.Unlock()
	if n == nil {
		return nil, nil
	}
	return node{d: d, n: n}, nil
}

// Observe implements dom.Feed.
func (d *Document) Observe(root dom.Node, scope dom.Scope, fn dom.Listener) (dom.Handle, error) {
	nd, ok := root.(node)
	if !ok || nd.d != d {
		return nil, fmt.Errorf("domtest: foreign node %T", root)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.observeErr != nil {
		return nil, d.observeErr
	}
	d.observed++
	d.nextSub++
	id := d.nextSub
	d.subs[id] = &subscription{root: nd.n, scope: scope, fn: fn}
	return handle{d: d, id: id}, nil
}

type handle struct {
	d  *Document
	id int
}

func (h handle) Dispose() {
	h.d.mu.Lock()
	delete(h.d.subs, h.id)
	h.d.mu.Unlock()
}

// FailObserve makes subsequent Observe calls fail with err (nil clears).
func (d *Document) FailObserve(err error) {
	d.mu.Lock()
	d.observeErr = err
	d.mu.Unlock()
}

// Observed returns how many subscriptions were ever created.
func (d *Document) Observed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observed
}

// Live returns the number of undisposed subscriptions.
func (d *Document) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Append parses markup and appends it to the first element matching
// parentSel, then notifies.
func (d *Document) Append(parentSel, markup string) error {
	d.mu.Lock()
	parent := extract.Query(d.doc, parentSel)
	if parent == nil {
		d.mu.Unlock()
		return fmt.Errorf("domtest: no element matches %q", parentSel)
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("domtest: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.enqueueLocked(parent, dom.OpInsert)
	d.mu.Unlock()
	d.drain()
	return nil
}

// Remove detaches the first element matching sel, then notifies.
func (d *Document) Remove(sel string) error {
	d.mu.Lock()
	n := extract.Query(d.doc, sel)
	if n == nil {
		d.mu.Unlock()
		return fmt.Errorf("domtest: no element matches %q", sel)
	}
	parent := n.Parent
	parent.RemoveChild(n)
	d.enqueueLocked(parent, dom.OpRemove)
	d.mu.Unlock()
	d.drain()
	return nil
}

// Rerender replaces the children of the first element matching sel with
// identical copies: a structural mutation that changes no text, like the
// highlight churn of a live move list.
func (d *Document) Rerender(sel string) error {
	d.mu.Lock()
	n := extract.Query(d.doc, sel)
	if n == nil {
		d.mu.Unlock()
		return fmt.Errorf("domtest: no element matches %q", sel)
	}
	var copies []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		copies = append(copies, clone(c))
	}
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	for _, c := range copies {
		n.AppendChild(c)
	}
	d.enqueueLocked(n, dom.OpInsert)
	d.mu.Unlock()
	d.drain()
	return nil
}

// HTML renders the current document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	html.Render(&sb, d.doc)
	return sb.String()
}

// enqueueLocked queues one batch for every subscription whose scope covers
// a child list change of parent.
func (d *Document) enqueueLocked(parent *html.Node, op dom.Op) {
	d.seq++
	rec := dom.Record{Op: op, Parent: d.keyLocked(parent)}
	for _, id := range slices.Sorted(maps.Keys(d.subs)) {
		if s := d.subs[id]; covers(s, parent) {
			d.queue = append(d.queue, delivery{id: id, batch: dom.Batch{Seq: d.seq, Records: []dom.Record{rec}}})
		}
	}
}

func (d *Document) keyLocked(n *html.Node) string {
	if n == d.doc {
		return "document"
	}
	if k, ok := d.keys[n]; ok {
		return k
	}
	d.next++
	k := fmt.Sprintf("node-%d", d.next)
	d.keys[n] = k
	return k
}

func covers(s *subscription, parent *html.Node) bool {
	if s.scope == dom.ScopeNode {
		return s.root == parent
	}
	for a := parent; a != nil; a = a.Parent {
		if a == s.root {
			return true
		}
	}
	return false
}

// drain delivers queued batches unless a delivery is already running
// further up the stack.
func (d *Document) drain() {
	d.mu.Lock()
	if d.delivering {
		d.mu.Unlock()
		return
	}
	d.delivering = true
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		s, ok := d.subs[next.id]
		if !ok {
			continue // disposed while queued
		}
		d.mu.Unlock()
		s.fn(next.batch)
		d.mu.Lock()
	}
	d.delivering = false
	d.mu.Unlock()
}

func clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(clone(ch))
	}
	return c
}
