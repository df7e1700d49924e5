package domtest

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
)

// The methods below make Document an overlay surface.

// Exists reports whether an element with the given id is attached.
func (d *Document) Exists(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID(id) != nil, nil
}

// AppendHTML appends markup to the first element matching parentSel.
func (d *Document) AppendHTML(_ context.Context, parentSel, markup string) error {
	return d.Append(parentSel, markup)
}

// SetText replaces the children of element id with a single text node.
func (d *Document) SetText(_ context.Context, id, text string) error {
	d.mu.Lock()
	n := d.byID(id)
	if n == nil {
		d.mu.Unlock()
		return fmt.Errorf("domtest: no element #%s", id)
	}
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	d.enqueueLocked(n, dom.OpInsert)
	d.mu.Unlock()
	d.drain()
	return nil
}

// Text returns the trimmed text of element id, or "" if absent.
func (d *Document) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(extract.Text(n))
}

// OnClick registers fn for clicks on element id.
func (d *Document) OnClick(_ context.Context, id string, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks[id] = fn
	return nil
}

// Click invokes the handler bound to element id. It reports whether the
// element exists and has a handler.
func (d *Document) Click(id string) bool {
	d.mu.Lock()
	fn, ok := d.clicks[id]
	present := d.byID(id) != nil
	d.mu.Unlock()
	if !ok || !present {
		return false
	}
	fn()
	return true
}

// Alert records msg.
func (d *Document) Alert(_ context.Context, msg string) error {
	d.mu.Lock()
	d.alerts = append(d.alerts, msg)
	d.mu.Unlock()
	return nil
}

// Alerts returns every recorded alert in order.
func (d *Document) Alerts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.alerts...)
}

func (d *Document) byID(id string) *html.Node {
	return extract.Query(d.doc, "#"+id)
}
