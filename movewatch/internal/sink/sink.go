// Package sink delivers confirmed move-list changes to their consumers.
//
// The Dispatcher turns a sequence accepted by the change gate into a
// moves.Update and hands it to a Sink off the event loop, so a slow backend
// never stalls mutation processing. Sinks: the backend's POST /moves, JSON
// lines on stdout, an sqlite journal and in-process callbacks, fanned out
// by a Router.
package sink

import (
	"context"

	"github.com/hazyhaar/movewatch/movewatch/moves"
)

// Sink is the output interface.
type Sink interface {
	Send(ctx context.Context, u moves.Update) error
	Close() error
}
