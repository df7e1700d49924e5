package domtest

import (
	"fmt"
	"strings"
)

// Row renders one move-list row in the host page's markup. An empty side
// is left out of the row entirely.
func Row(white, black string) string {
	var sb strings.Builder
	sb.WriteString(`<div class="main-line-row move-list-row">`)
	if white != "" {
		fmt.Fprintf(&sb, `<div class="node white-move main-line-ply"><span class="node-highlight-content">%s</span></div>`, white)
	}
	if black != "" {
		fmt.Fprintf(&sb, `<div class="node black-move main-line-ply"><span class="node-highlight-content">%s</span></div>`, black)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// MoveList renders a move-list container holding rows.
func MoveList(rows ...string) string {
	return `<wc-simple-move-list>` + strings.Join(rows, "") + `</wc-simple-move-list>`
}

// Page renders a game page. body is placed inside the sidebar; pass "" for
// a page without a move list.
func Page(body string) string {
	return `<html><head></head><body>` +
		`<div id="board-layout-main"><div id="board-layout-chessboard"></div></div>` +
		`<div id="board-layout-sidebar">` + body + `</div>` +
		`</body></html>`
}
