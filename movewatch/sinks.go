package movewatch

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/movewatch/movewatch/internal/sink"
)

// Sink receives every dispatched update.
type Sink = sink.Sink

// UpdateFunc is called for each dispatched update.
type UpdateFunc = sink.UpdateFunc

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewBackendSink creates a sink posting updates to another ingestion
// service's /moves endpoint.
func NewBackendSink(baseURL string, logger *slog.Logger) Sink {
	return sink.NewBackend(baseURL, sink.WithBackendLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn UpdateFunc) Sink {
	return sink.NewCallback(fn)
}
