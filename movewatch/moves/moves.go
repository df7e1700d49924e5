// Package moves defines the values movewatch extracts and emits.
// These are the public contract for any consumer of dispatched move lists:
// tokens are opaque display strings, never interpreted as chess moves.
package moves

import (
	"encoding/json"
	"strings"
)

// Token is one half-move's display text ("e4", "Nf3").
type Token string

// Sequence is the ordered move list, white and black interleaved in play
// order. A Sequence is never modified after extraction.
type Sequence []Token

// Equal reports positional equality: same length, same token at every index.
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Clone of nil is an empty, non-nil slice.
func (s Sequence) Clone() Sequence {
	c := make(Sequence, len(s))
	copy(c, s)
	return c
}

// Strings returns the tokens as plain strings. Never nil, so an empty
// sequence serialises as [] rather than null.
func (s Sequence) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

func (s Sequence) String() string {
	return strings.Join(s.Strings(), " ")
}

// FromStrings builds a Sequence from raw strings.
func FromStrings(ss ...string) Sequence {
	out := make(Sequence, len(ss))
	for i, v := range ss {
		out[i] = Token(v)
	}
	return out
}

// Payload is the body of POST /moves.
type Payload struct {
	Moves []string `json:"moves"`
}

// NewPayload wraps a full sequence (never a diff) for the ingestion endpoint.
func NewPayload(s Sequence) Payload {
	return Payload{Moves: s.Strings()}
}

// Update is the unit emitted by the dispatcher. One update = one change
// confirmed by the change gate.
type Update struct {
	ID        string   `json:"id"`      // UUIDv7
	PageID    string   `json:"page_id"` // stable identifier provided by caller
	Seq       uint64   `json:"seq"`     // monotonically increasing per watcher (gap detection)
	Moves     Sequence `json:"moves"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at dispatch
}

// MarshalJSON keeps Moves as [] when empty.
func (u Update) MarshalJSON() ([]byte, error) {
	type alias Update
	return json.Marshal(struct {
		alias
		Moves []string `json:"moves"`
	}{alias: alias(u), Moves: u.Moves.Strings()})
}
