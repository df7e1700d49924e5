package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/movewatch/movewatch/moves"
)

func row(white, black string) string {
	var sb strings.Builder
	sb.WriteString(`<div class="main-line-row move-list-row">`)
	if white != "" {
		fmt.Fprintf(&sb, `<div class="node white-move main-line-ply"><span class="node-highlight-content"> %s </span></div>`, white)
	}
	if black != "" {
		fmt.Fprintf(&sb, `<div class="node black-move main-line-ply"><span class="node-highlight-content">%s</span></div>`, black)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func moveList(t *testing.T, rows ...string) *html.Node {
	t.Helper()
	n, err := ParseElement(`<wc-simple-move-list>` + strings.Join(rows, "") + `</wc-simple-move-list>`)
	if err != nil {
		t.Fatal(err)
	}
	if n == nil {
		t.Fatal("ParseElement returned nil")
	}
	return n
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestMoves_SingleWhite(t *testing.T) {
	e := newExtractor(t)
	got := e.Moves(moveList(t, row("e4", "")))
	if !got.Equal(moves.FromStrings("e4")) {
		t.Errorf("got %v, want [e4]", got)
	}
}

func TestMoves_RowOrderWhiteThenBlack(t *testing.T) {
	e := newExtractor(t)
	got := e.Moves(moveList(t, row("e4", "e5"), row("Nf3", "Nc6"), row("Bb5", "")))
	want := moves.FromStrings("e4", "e5", "Nf3", "Nc6", "Bb5")
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMoves_MissingWhiteOmitted(t *testing.T) {
	e := newExtractor(t)
	// A row with only black (e.g. a game started from a position) inserts no placeholder.
	got := e.Moves(moveList(t, row("", "e5"), row("Nf3", "")))
	want := moves.FromStrings("e5", "Nf3")
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMoves_TrimsWhitespace(t *testing.T) {
	e := newExtractor(t)
	got := e.Moves(moveList(t, row("\n  e4\t", "")))
	if len(got) != 1 || got[0] != "e4" {
		t.Errorf("got %q, want [e4]", got)
	}
}

func TestMoves_EmptyAndMalformed(t *testing.T) {
	e := newExtractor(t)

	if got := e.Moves(nil); got == nil || len(got) != 0 {
		t.Errorf("nil root: got %#v, want empty non-nil", got)
	}
	if got := e.Moves(moveList(t)); len(got) != 0 {
		t.Errorf("empty list: got %v", got)
	}
	junk, _ := ParseElement(`<wc-simple-move-list><p>loading<span class="node">?</span></p></wc-simple-move-list>`)
	if got := e.Moves(junk); len(got) != 0 {
		t.Errorf("malformed: got %v", got)
	}
}

func TestMoves_IgnoresVariationPlies(t *testing.T) {
	e := newExtractor(t)
	// Variation nodes lack main-line-ply and must not leak into the main line.
	markup := `<div class="main-line-row move-list-row">` +
		`<div class="node white-move main-line-ply"><span class="node-highlight-content">d4</span></div>` +
		`<div class="node black-move"><span class="node-highlight-content">Nf6</span></div>` +
		`</div>`
	got := e.Moves(moveList(t, markup))
	if !got.Equal(moves.FromStrings("d4")) {
		t.Errorf("got %v, want [d4]", got)
	}
}

func TestMoves_Deterministic(t *testing.T) {
	e := newExtractor(t)
	root := moveList(t, row("e4", "e5"), row("Nf3", ""))
	a := e.Moves(root)
	b := e.Moves(root)
	if !a.Equal(b) {
		t.Errorf("extraction not deterministic: %v vs %v", a, b)
	}
}

type fakeNode struct {
	tree *html.Node
	err  error
}

func (f fakeNode) Key() string { return "fake" }
func (f fakeNode) Tree(context.Context) (*html.Node, error) {
	return f.tree, f.err
}

func TestFromNode(t *testing.T) {
	e := newExtractor(t)
	got, err := e.FromNode(context.Background(), fakeNode{tree: moveList(t, row("e4", "c5"))})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(moves.FromStrings("e4", "c5")) {
		t.Errorf("got %v", got)
	}

	boom := errors.New("node detached")
	if _, err := e.FromNode(context.Background(), fakeNode{err: boom}); !errors.Is(err, boom) {
		t.Errorf("err: got %v, want wrapped %v", err, boom)
	}
}

func TestNew_RejectsEmptySelector(t *testing.T) {
	sel := DefaultSelectors()
	sel.WhiteMove = ""
	if _, err := New(sel); err == nil {
		t.Fatal("expected error for empty white_move selector")
	}
}
