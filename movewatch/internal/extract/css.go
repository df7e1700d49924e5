package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector. Supported subset:
//   - tag: "wc-simple-move-list", "div"
//   - classes, any number: ".node.white-move.main-line-ply"
//   - #id: "#board-layout-main"
//   - [attr] and [attr=val]: "div[data-ply]", "div[data-ply=3]"
//   - compounds of the above: "div.row#first[data-x=1]"
//   - descendant combinator (whitespace)
//   - selector lists separated by commas
type Selector struct {
	raw  string
	alts [][]compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSel
}

type attrSel struct {
	key    string
	val    string
	hasVal bool
}

// Compile parses a selector.
func Compile(sel string) (Selector, error) {
	s := Selector{raw: sel}
	for _, alt := range strings.Split(sel, ",") {
		parts := strings.Fields(alt)
		if len(parts) == 0 {
			return Selector{}, fmt.Errorf("extract: empty selector in %q", sel)
		}
		var chain []compound
		for _, p := range parts {
			c, err := parseCompound(p)
			if err != nil {
				return Selector{}, fmt.Errorf("extract: %q: %w", sel, err)
			}
			chain = append(chain, c)
		}
		s.alts = append(s.alts, chain)
	}
	return s, nil
}

// MustCompile is Compile for constant selectors.
func MustCompile(sel string) Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.raw }

// parseCompound parses "tag.class1.class2#id[attr=val]".
func parseCompound(p string) (compound, error) {
	var c compound
	i := 0
	for i < len(p) && !strings.ContainsRune(".#[", rune(p[i])) {
		i++
	}
	c.tag = strings.ToLower(p[:i])

	for i < len(p) {
		switch p[i] {
		case '.', '#':
			j := i + 1
			for j < len(p) && !strings.ContainsRune(".#[", rune(p[j])) {
				j++
			}
			name := p[i+1 : j]
			if name == "" {
				return c, fmt.Errorf("dangling %q", p[i])
			}
			if p[i] == '.' {
				c.classes = append(c.classes, name)
			} else {
				c.id = name
			}
			i = j
		case '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute selector")
			}
			body := p[i+1 : i+end]
			var a attrSel
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				a.key = body[:eq]
				a.val = strings.Trim(body[eq+1:], `"'`)
				a.hasVal = true
			} else {
				a.key = body
			}
			if a.key == "" {
				return c, fmt.Errorf("empty attribute name")
			}
			c.attrs = append(c.attrs, a)
			i += end + 1
		default:
			return c, fmt.Errorf("unexpected %q", p[i])
		}
	}
	return c, nil
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(getAttr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !hasAttr(n, a.key) {
			return false
		}
		if a.hasVal && getAttr(n, a.key) != a.val {
			return false
		}
	}
	return true
}

// Matches reports whether n matches the selector, considering ancestors up
// to and including scope.
func (s Selector) Matches(n, scope *html.Node) bool {
	for _, chain := range s.alts {
		if matchChain(chain, n, scope) {
			return true
		}
	}
	return false
}

// matchChain matches right to left: the last compound against n, the rest
// greedily against its ancestors.
func matchChain(chain []compound, n, scope *html.Node) bool {
	last := len(chain) - 1
	if !chain[last].matches(n) {
		return false
	}
	i := last - 1
	if n == scope {
		return i < 0
	}
	for a := n.Parent; i >= 0 && a != nil; a = a.Parent {
		if chain[i].matches(a) {
			i--
		}
		if a == scope {
			break
		}
	}
	return i < 0
}

// All returns the descendants of root matching s, in document order. root
// itself is never returned.
func (s Selector) All(root *html.Node) []*html.Node {
	if root == nil {
		return nil
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if s.Matches(c, root) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// First returns the first descendant of root matching s, or nil.
func (s Selector) First(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if s.Matches(c, root) {
				found = c
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// QueryAll compiles selector and returns all matches under root. An invalid
// selector matches nothing.
func QueryAll(root *html.Node, selector string) []*html.Node {
	s, err := Compile(selector)
	if err != nil {
		return nil
	}
	return s.All(root)
}

// Query compiles selector and returns the first match under root, or nil.
func Query(root *html.Node, selector string) *html.Node {
	s, err := Compile(selector)
	if err != nil {
		return nil
	}
	return s.First(root)
}

// Text returns the concatenated text content of n and its descendants.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return sb.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
