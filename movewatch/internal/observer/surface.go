package observer

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// clickBinding is the page-side function bound controls call with their
// element id.
const clickBinding = "__movewatch_click"

// Exists reports whether the page has an element with the given id.
func (o *Observer) Exists(ctx context.Context, id string) (bool, error) {
	res, err := o.page.Context(ctx).Eval(`(id) => document.getElementById(id) !== null`, id)
	if err != nil {
		return false, fmt.Errorf("observer: lookup #%s: %w", id, err)
	}
	return res.Value.Bool(), nil
}

// AppendHTML parses markup in the page and appends it to the first element
// matching parentSelector.
func (o *Observer) AppendHTML(ctx context.Context, parentSelector, markup string) error {
	res, err := o.page.Context(ctx).Eval(`(sel, markup) => {
		const host = document.querySelector(sel);
		if (!host) return false;
		host.insertAdjacentHTML("beforeend", markup);
		return true;
	}`, parentSelector, markup)
	if err != nil {
		return fmt.Errorf("observer: append to %s: %w", parentSelector, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("observer: no element matches %q", parentSelector)
	}
	return nil
}

// SetText replaces the text content of the element with the given id.
func (o *Observer) SetText(ctx context.Context, id, text string) error {
	res, err := o.page.Context(ctx).Eval(`(id, text) => {
		const el = document.getElementById(id);
		if (!el) return false;
		el.textContent = text;
		return true;
	}`, id, text)
	if err != nil {
		return fmt.Errorf("observer: set #%s: %w", id, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("observer: no element #%s", id)
	}
	return nil
}

// OnClick calls fn whenever the element with the given id is clicked. A
// handler registered for an id replaces the previous one; an element
// instance is wired at most once.
func (o *Observer) OnClick(ctx context.Context, id string, fn func()) error {
	o.mu.Lock()
	o.clicks[id] = fn
	o.mu.Unlock()

	res, err := o.page.Context(ctx).Eval(`(id, binding) => {
		const el = document.getElementById(id);
		if (!el) return false;
		if (!el.__movewatchBound) {
			el.__movewatchBound = true;
			el.addEventListener("click", () => window[binding](id));
		}
		return true;
	}`, id, clickBinding)
	if err != nil {
		return fmt.Errorf("observer: bind #%s: %w", id, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("observer: no element #%s", id)
	}
	return nil
}

// Alert shows msg in a page dialog. The dialog is opened from a timer so
// the evaluation does not block on it.
func (o *Observer) Alert(ctx context.Context, msg string) error {
	_, err := o.page.Context(ctx).Eval(`(msg) => { setTimeout(() => alert(msg), 0); }`, msg)
	if err != nil {
		return fmt.Errorf("observer: alert: %w", err)
	}
	return nil
}

func (o *Observer) onBinding(e *proto.RuntimeBindingCalled) {
	if e.Name != clickBinding {
		return
	}
	o.mu.Lock()
	fn := o.clicks[e.Payload]
	o.mu.Unlock()
	if fn == nil {
		o.logger.Debug("observer: click on unbound control", "id", e.Payload)
		return
	}
	fn()
}
