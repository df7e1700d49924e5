package engine

import (
	"strconv"
	"strings"
)

// Info is what the panel shows of one engine analysis line. Fields hold the
// raw tokens; an absent field is "".
type Info struct {
	Depth   string `json:"depth"`
	Score   string `json:"score"` // centipawns
	Mate    string `json:"mate,omitempty"`
	MultiPV string `json:"multipv,omitempty"`
	PV      string `json:"pv"`
}

// ParseLine extracts depth, score and principal variation from a UCI info
// line such as "info depth 12 multipv 1 score cp 35 pv e4 e5 Nf3". Every
// token after "pv" belongs to the variation.
func ParseLine(line string) Info {
	var info Info
	parts := strings.Fields(line)
	for i := 0; i < len(parts); i++ {
		next := ""
		if i+1 < len(parts) {
			next = parts[i+1]
		}
		switch parts[i] {
		case "depth":
			info.Depth = next
		case "multipv":
			info.MultiPV = next
		case "cp":
			info.Score = next
		case "mate":
			info.Mate = next
		case "pv":
			info.PV = strings.Join(parts[i+1:], " ")
			return info
		}
	}
	return info
}

// FormatScore renders the score in pawns with two decimals ("35" → "0.35").
// A mate score renders as "#N". Anything else renders as "-".
func FormatScore(info Info) string {
	if info.Score != "" {
		cp, err := strconv.ParseFloat(info.Score, 64)
		if err != nil {
			return "-"
		}
		return strconv.FormatFloat(cp/100, 'f', 2, 64)
	}
	if info.Mate != "" {
		if _, err := strconv.Atoi(info.Mate); err == nil {
			return "#" + info.Mate
		}
	}
	return "-"
}

// FormatDepth renders the depth label.
func FormatDepth(info Info) string {
	if info.Depth == "" {
		return "Depth -"
	}
	return "Depth " + info.Depth
}
