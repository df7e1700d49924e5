// Package extract turns a move-list subtree into an ordered move sequence.
//
// The subtree is a parsed golang.org/x/net/html tree; rows and per-side
// token elements are located with the CSS subset in css.go. Extraction is a
// pure function of the tree: no side effects, deterministic, and an empty or
// malformed subtree yields an empty sequence rather than an error.
package extract

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// Selectors is the lookup table describing the host page's markup. When the
// page changes, only this table needs updating.
type Selectors struct {
	MoveList  string `yaml:"move_list" json:"move_list"`
	MoveRows  string `yaml:"move_rows" json:"move_rows"`
	WhiteMove string `yaml:"white_move" json:"white_move"`
	BlackMove string `yaml:"black_move" json:"black_move"`
}

// DefaultSelectors matches the chess.com move list markup.
func DefaultSelectors() Selectors {
	return Selectors{
		MoveList:  "wc-simple-move-list",
		MoveRows:  ".main-line-row.move-list-row",
		WhiteMove: ".node.white-move.main-line-ply .node-highlight-content",
		BlackMove: ".node.black-move.main-line-ply .node-highlight-content",
	}
}

// Extractor holds the compiled row and token selectors.
type Extractor struct {
	sel   Selectors
	rows  Selector
	white Selector
	black Selector
}

// New compiles sel. Every selector must be present and valid.
func New(sel Selectors) (*Extractor, error) {
	var err error
	e := &Extractor{sel: sel}
	if _, err = Compile(sel.MoveList); err != nil {
		return nil, fmt.Errorf("extract: move_list: %w", err)
	}
	if e.rows, err = Compile(sel.MoveRows); err != nil {
		return nil, fmt.Errorf("extract: move_rows: %w", err)
	}
	if e.white, err = Compile(sel.WhiteMove); err != nil {
		return nil, fmt.Errorf("extract: white_move: %w", err)
	}
	if e.black, err = Compile(sel.BlackMove); err != nil {
		return nil, fmt.Errorf("extract: black_move: %w", err)
	}
	return e, nil
}

// Selectors returns the table the extractor was built from.
func (e *Extractor) Selectors() Selectors { return e.sel }

// Moves walks the rows under root in document order. Each row contributes
// its white token then its black token; a side whose element is absent
// contributes nothing.
func (e *Extractor) Moves(root *html.Node) moves.Sequence {
	seq := moves.Sequence{}
	for _, row := range e.rows.All(root) {
		if w := e.white.First(row); w != nil {
			seq = append(seq, moves.Token(strings.TrimSpace(Text(w))))
		}
		if b := e.black.First(row); b != nil {
			seq = append(seq, moves.Token(strings.TrimSpace(Text(b))))
		}
	}
	return seq
}

// FromNode snapshots n and extracts its moves.
func (e *Extractor) FromNode(ctx context.Context, n dom.Node) (moves.Sequence, error) {
	tree, err := n.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: read subtree %s: %w", n.Key(), err)
	}
	return e.Moves(tree), nil
}

// ParseElement parses serialised outer HTML and returns its first element,
// detached from any parent. Markup without an element yields nil.
func ParseElement(markup string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("extract: parse fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, nil
		}
	}
	return nil, nil
}
