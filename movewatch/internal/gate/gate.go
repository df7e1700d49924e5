// Package gate suppresses redundant move-list notifications.
//
// Mutation notifications fire far more often than the move list actually
// changes (highlight churn re-renders nodes without changing their text).
// The Gate compares each freshly extracted sequence against the last
// published one and lets through only genuine changes.
package gate

import "github.com/hazyhaar/movewatch/movewatch/moves"

// Gate owns the published baseline. It is not safe for concurrent use: all
// calls come from the watcher's serialised pass.
type Gate struct {
	baseline moves.Sequence
}

// New returns a Gate whose baseline is the empty sequence.
func New() *Gate {
	return &Gate{baseline: moves.Sequence{}}
}

// Evaluate compares candidate to the baseline by value. On difference the
// baseline becomes a copy of candidate and Evaluate returns true (dispatch);
// otherwise it returns false (suppress).
func (g *Gate) Evaluate(candidate moves.Sequence) bool {
	if g.baseline.Equal(candidate) {
		return false
	}
	g.baseline = candidate.Clone()
	return true
}

// Baseline returns a copy of the last published sequence.
func (g *Gate) Baseline() moves.Sequence {
	return g.baseline.Clone()
}
