package overlay

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element ids of the panel.
const (
	IDOutput = "chess-engine-output"
	IDDepth  = "engine-output-depth"
	IDScore  = "engine-output-score"
	IDPV     = "engine-output-pv"
	IDToggle = "toggleEngine"
	IDCheck  = "checkState"
)

// Initial texts, restored by Reset.
const (
	InitialDepth  = "Depth 0"
	InitialScore  = "-"
	InitialPV     = "-- --"
	InitialToggle = "Start / Stop"
	CheckLabel    = "Check Status"
)

type decl struct{ prop, value string }

// style is an ordered declaration list with camelCase property names.
type style []decl

var (
	engineOutputStyle = style{
		{"backgroundColor", "#000"},
		{"color", "#fff"},
		{"padding", "10px"},
		{"fontSize", "16px"},
		{"textAlign", "center"},
		{"boxSizing", "border-box"},
		{"zIndex", "9999"},
	}
	flexRowStyle = style{
		{"display", "flex"},
		{"flexDirection", "row"},
		{"justifyContent", "space-between"},
		{"alignItems", "center"},
	}
	flexColumnStyle = style{
		{"display", "flex"},
		{"flexDirection", "column"},
		{"gap", "5px"},
	}
	outputSpanStyle = style{
		{"padding", "5px 10px"},
	}
	buttonStyle = style{
		{"padding", "5px 10px"},
		{"fontSize", "14px"},
		{"cursor", "pointer"},
	}
)

// String renders the inline CSS: "background-color: #000; color: #fff".
func (s style) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = kebab(d.prop) + ": " + d.value
	}
	return strings.Join(parts, "; ")
}

// kebab converts a camelCase property name to CSS form.
func kebab(prop string) string {
	var sb strings.Builder
	for _, r := range prop {
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte('-')
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func elem(a atom.Atom, attrs []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attrs(id string, st style) []html.Attribute {
	var out []html.Attribute
	if id != "" {
		out = append(out, html.Attribute{Key: "id", Val: id})
	}
	if len(st) > 0 {
		out = append(out, html.Attribute{Key: "style", Val: st.String()})
	}
	return out
}

// Tree builds the panel as a detached node tree.
func Tree() *html.Node {
	span := func(id, initial string) *html.Node {
		return elem(atom.Span, attrs(id, outputSpanStyle), text(initial))
	}
	button := func(id, label string) *html.Node {
		return elem(atom.Button, attrs(id, buttonStyle), text(label))
	}
	return elem(atom.Div, attrs(IDOutput, engineOutputStyle),
		elem(atom.Div, attrs("", flexRowStyle),
			elem(atom.Div, nil,
				span(IDDepth, InitialDepth),
				span(IDScore, InitialScore),
				span(IDPV, InitialPV),
			),
			elem(atom.Div, attrs("", flexColumnStyle),
				button(IDToggle, InitialToggle),
				button(IDCheck, CheckLabel),
			),
		),
	)
}

// Markup renders the panel HTML.
func Markup() string {
	var sb strings.Builder
	html.Render(&sb, Tree())
	return sb.String()
}
