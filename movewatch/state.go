package movewatch

import (
	"context"
	"time"

	"github.com/hazyhaar/movewatch/movewatch/internal/engine"
	"github.com/hazyhaar/movewatch/movewatch/internal/overlay"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// State is a snapshot of a running Watcher.
type State struct {
	PageID          string        `json:"page_id"`
	Attached        bool          `json:"attached"`
	Watching        bool          `json:"watching"`
	Root            string        `json:"root,omitempty"`
	Checks          uint64        `json:"checks"`
	OverlayMounted  bool          `json:"overlay_mounted"`
	EngineRunning   bool          `json:"engine_running"`
	EngineLine      *EngineLine   `json:"engine_line,omitempty"`
	Baseline        []string      `json:"baseline"`
	LastUpdate      *moves.Update `json:"last_update,omitempty"`
	Stream          string        `json:"stream"`
	SelectorVersion string        `json:"selector_version,omitempty"`
	Recycles        int           `json:"recycles"`
	Uptime          string        `json:"uptime"`
}

// EngineLine is the analysis line shown in the panel.
type EngineLine struct {
	Depth string `json:"depth"`
	Score string `json:"score"`
	PV    string `json:"pv"`
}

// State returns a snapshot. Watcher-side fields are read on the event
// loop, so the snapshot is consistent with the notifications handled so far.
func (w *Watcher) State(ctx context.Context) (State, error) {
	w.mu.Lock()
	st := State{
		PageID:          w.pageID,
		SelectorVersion: w.selectorVersion,
		Stream:          w.stream.State().String(),
	}
	if !w.started.IsZero() {
		st.Uptime = time.Since(w.started).Truncate(time.Second).String()
	}
	b := w.attached
	w.mu.Unlock()

	if w.mgr != nil {
		st.Recycles = w.mgr.Recycles()
	}
	if u, ok := w.dispatcher.Last(); ok {
		st.LastUpdate = &u
	}
	err := w.loop.Call(ctx, func() {
		st.Baseline = w.gate.Baseline().Strings()
		if b == nil {
			return
		}
		cs := b.ctl.Status()
		st.Attached = true
		st.Watching, st.Root, st.Checks = cs.Watching, cs.Root, cs.Checks
	})
	if err != nil {
		return State{}, err
	}
	if b != nil && b.panel != nil {
		_, st.OverlayMounted = b.panel.Mounted()
		st.EngineRunning = b.panel.Running()
		if info := b.panel.Last(); info != (engine.Info{}) {
			pv := info.PV
			if pv == "" {
				pv = overlay.InitialPV
			}
			st.EngineLine = &EngineLine{
				Depth: engine.FormatDepth(info),
				Score: engine.FormatScore(info),
				PV:    pv,
			}
		}
	}
	return st, nil
}

// History returns the most recent dispatched updates, newest first.
func (w *Watcher) History(ctx context.Context, limit int) ([]moves.Update, error) {
	w.mu.Lock()
	j := w.journal
	w.mu.Unlock()
	if j == nil {
		return nil, ErrNoJournal
	}
	return j.Recent(ctx, limit)
}
