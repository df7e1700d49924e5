package attach

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/internal/dom/domtest"
	"github.com/hazyhaar/movewatch/movewatch/internal/extract"
	"github.com/hazyhaar/movewatch/movewatch/internal/subtree"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

type recorder struct{ got []moves.Sequence }

func (r *recorder) Dispatch(_ context.Context, seq moves.Sequence) error {
	r.got = append(r.got, seq.Clone())
	return nil
}

type fakeOverlay struct {
	calls   int
	anchors []string
	err     error
}

func (f *fakeOverlay) Ensure(_ context.Context, anchor dom.Node) error {
	f.calls++
	f.anchors = append(f.anchors, anchor.Key())
	return f.err
}

type harness struct {
	doc *domtest.Document
	w   *subtree.Watcher
	rec *recorder
	ov  *fakeOverlay
	c   *Controller
}

func newHarness(t *testing.T, markup string) *harness {
	t.Helper()
	h := &harness{doc: domtest.MustNew(markup), rec: &recorder{}, ov: &fakeOverlay{}}
	ex, err := extract.New(extract.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	h.w = subtree.New(subtree.Config{Feed: h.doc, Extractor: ex, Dispatcher: h.rec})
	h.c, err = New(Config{
		Document:      h.doc,
		Feed:          h.doc,
		Watcher:       h.w,
		Overlay:       h.ov,
		MoveList:      "wc-simple-move-list",
		OverlayAnchor: "#board-layout-chessboard",
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStart_InitialCheck(t *testing.T) {
	h := newHarness(t, domtest.Page(domtest.MoveList(domtest.Row("e4", ""))))
	h.start(t)

	if h.w.State() != subtree.Active {
		t.Fatal("watcher not armed by the initial check")
	}
	if len(h.rec.got) != 1 || !h.rec.got[0].Equal(moves.FromStrings("e4")) {
		t.Errorf("dispatched %v, want [[e4]]", h.rec.got)
	}
	if h.ov.calls != 1 {
		t.Errorf("overlay Ensure calls = %d, want 1", h.ov.calls)
	}
}

func TestStart_NoMoveListYet(t *testing.T) {
	h := newHarness(t, domtest.Page(""))
	h.start(t)
	if h.w.State() != subtree.Inactive {
		t.Fatal("armed without a move list")
	}

	// SPA navigation renders the game later.
	if err := h.doc.Append("#board-layout-sidebar", domtest.MoveList(domtest.Row("d4", "d5"))); err != nil {
		t.Fatal(err)
	}
	if h.w.State() != subtree.Active {
		t.Fatal("watcher not armed after the move list appeared")
	}
	if len(h.rec.got) != 1 || !h.rec.got[0].Equal(moves.FromStrings("d4", "d5")) {
		t.Errorf("dispatched %v, want [[d4 d5]]", h.rec.got)
	}
}

func TestCheck_ReaddedListSameContentNoRedispatch(t *testing.T) {
	h := newHarness(t, domtest.Page(domtest.MoveList(domtest.Row("e4", "e5"))))
	h.start(t)

	h.doc.Remove("wc-simple-move-list")
	if h.w.State() != subtree.Inactive {
		t.Fatal("watcher still active after the move list was removed")
	}
	h.doc.Append("#board-layout-sidebar", domtest.MoveList(domtest.Row("e4", "e5")))
	if h.w.State() != subtree.Active {
		t.Fatal("watcher not re-armed")
	}
	if len(h.rec.got) != 1 {
		t.Errorf("dispatches = %d, want 1 (%v)", len(h.rec.got), h.rec.got)
	}
	if h.doc.Live() != 2 {
		t.Errorf("live subscriptions = %d, want 2 (document + list)", h.doc.Live())
	}
}

func TestCheck_ReplacedInOneBatch(t *testing.T) {
	h := newHarness(t, domtest.Page(domtest.MoveList(domtest.Row("e4", ""))))
	h.start(t)
	before := h.w.Root().Key()

	// The sidebar re-renders: a new list node with identical content.
	h.doc.Rerender("#board-layout-sidebar")

	if h.w.State() != subtree.Active {
		t.Fatal("watcher inactive after replacement")
	}
	if h.w.Root().Key() == before {
		t.Fatal("watcher still bound to the detached list")
	}
	if h.doc.Live() != 2 {
		t.Errorf("live subscriptions = %d, want 2", h.doc.Live())
	}

	// The new list is the one being watched.
	h.doc.Append(".main-line-row", `<div class="node black-move main-line-ply"><span class="node-highlight-content">c5</span></div>`)
	want := []moves.Sequence{moves.FromStrings("e4"), moves.FromStrings("e4", "c5")}
	if len(h.rec.got) != len(want) {
		t.Fatalf("dispatched %v, want %v", h.rec.got, want)
	}
	for i := range want {
		if !h.rec.got[i].Equal(want[i]) {
			t.Errorf("dispatch %d = %v, want %v", i, h.rec.got[i], want[i])
		}
	}
}

func TestCheck_OverlayPerAnchorInstance(t *testing.T) {
	h := newHarness(t, domtest.Page(""))
	h.start(t)
	first := h.ov.anchors[0]

	h.doc.Remove("#board-layout-chessboard")
	calls := h.ov.calls
	h.doc.Append("#board-layout-main", `<div id="board-layout-chessboard"></div>`)

	if h.ov.calls != calls+1 {
		t.Fatalf("Ensure calls = %d, want %d", h.ov.calls, calls+1)
	}
	if last := h.ov.anchors[len(h.ov.anchors)-1]; last == first {
		t.Error("Ensure received the old anchor instance")
	}
}

func TestCheck_OverlayErrorDoesNotStopWatching(t *testing.T) {
	h := newHarness(t, domtest.Page(domtest.MoveList(domtest.Row("e4", ""))))
	h.ov.err = errors.New("mount failed")
	h.start(t)
	h.doc.Append(".main-line-row", `<div class="node black-move main-line-ply"><span class="node-highlight-content">e5</span></div>`)
	if len(h.rec.got) != 2 {
		t.Errorf("dispatches = %d, want 2", len(h.rec.got))
	}
}

func TestStop(t *testing.T) {
	h := newHarness(t, domtest.Page(domtest.MoveList(domtest.Row("e4", ""))))
	h.start(t)
	h.c.Stop()

	if h.doc.Live() != 0 {
		t.Errorf("live subscriptions = %d after Stop", h.doc.Live())
	}
	checks := h.c.Status().Checks
	h.doc.Append("#board-layout-sidebar", `<p>noise</p>`)
	if h.c.Status().Checks != checks {
		t.Error("Check ran after Stop")
	}
	if st := h.c.Status(); st.Started || st.Watching {
		t.Errorf("status after Stop = %+v", st)
	}

	// Restart re-arms without re-dispatching unchanged content.
	h.start(t)
	if !h.c.Status().Watching {
		t.Error("not watching after restart")
	}
	if len(h.rec.got) != 1 {
		t.Errorf("dispatches = %d, want 1", len(h.rec.got))
	}
}

func TestStart_ObserveError(t *testing.T) {
	h := newHarness(t, domtest.Page(""))
	h.doc.FailObserve(errors.New("no target"))
	if err := h.c.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.c.Status().Started {
		t.Error("started despite observe failure")
	}
}

func TestStart_Idempotent(t *testing.T) {
	h := newHarness(t, domtest.Page(""))
	h.start(t)
	h.start(t)
	if h.doc.Observed() != 1 {
		t.Errorf("document subscriptions = %d, want 1", h.doc.Observed())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty config accepted")
	}
}

func TestReconfigure(t *testing.T) {
	markup := domtest.Page(`<wc-move-list-v2>` + domtest.Row("c4", "") + `</wc-move-list-v2>`)
	h := newHarness(t, markup)
	h.start(t)
	if h.w.State() != subtree.Inactive {
		t.Fatal("armed on a list the selectors do not match")
	}

	if err := h.c.Reconfigure(context.Background(), "wc-move-list-v2", "#board-layout-chessboard"); err != nil {
		t.Fatal(err)
	}
	if h.w.State() != subtree.Active {
		t.Fatal("not armed after the selectors were updated")
	}
	if len(h.rec.got) != 1 || !h.rec.got[0].Equal(moves.FromStrings("c4")) {
		t.Errorf("dispatched %v, want [[c4]]", h.rec.got)
	}

	if err := h.c.Reconfigure(context.Background(), "wc-simple-move-list", ""); err != nil {
		t.Fatal(err)
	}
	if h.w.State() != subtree.Inactive {
		t.Error("still armed on a list that no longer matches")
	}
	if err := h.c.Reconfigure(context.Background(), "", ""); err == nil {
		t.Error("empty move list selector accepted")
	}
}
