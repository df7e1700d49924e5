package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/movewatch/idgen"
	"github.com/hazyhaar/movewatch/movewatch/internal/metrics"
	"github.com/hazyhaar/movewatch/movewatch/moves"
)

var (
	// ErrQueueFull is returned by Dispatch when the queue cannot take the
	// update. The update is dropped.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatch: closed")
)

// Dispatcher wraps confirmed sequences into updates and delivers them to a
// sink from its own goroutine, in order.
type Dispatcher struct {
	sink    Sink
	pageID  string
	ids     idgen.Generator
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue chan moves.Update
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	seq  uint64
	last moves.Update
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPageID stamps every update with id.
func WithPageID(id string) DispatcherOption {
	return func(d *Dispatcher) { d.pageID = id }
}

// WithQueue sets the queue depth. Default: 64.
func WithQueue(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan moves.Update, n)
		}
	}
}

// WithIDGenerator replaces the UUIDv7 update id generator.
func WithIDGenerator(g idgen.Generator) DispatcherOption {
	return func(d *Dispatcher) { d.ids = g }
}

// WithMetrics records dispatch counters.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatchLogger sets a custom logger.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher delivering to s. Run must be started
// for updates to leave the queue.
func NewDispatcher(s Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:   s,
		ids:    idgen.UUIDv7(),
		now:    time.Now,
		logger: slog.Default(),
		queue:  make(chan moves.Update, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch enqueues seq without waiting for delivery. Delivery failures are
// logged by Run; only enqueue failures are returned.
func (d *Dispatcher) Dispatch(_ context.Context, seq moves.Sequence) error {
	select {
	case <-d.quit:
		return ErrClosed
	default:
	}

	d.mu.Lock()
	d.seq++
	u := moves.Update{
		ID:        d.ids(),
		PageID:    d.pageID,
		Seq:       d.seq,
		Moves:     seq.Clone(),
		Timestamp: d.now().UnixMilli(),
	}
	d.last = u
	d.mu.Unlock()

	select {
	case d.queue <- u:
		return nil
	default:
		d.metrics.DispatchDrop()
		return ErrQueueFull
	}
}

// Last returns the most recent update handed to Dispatch, and false if
// there is none yet.
func (d *Dispatcher) Last() (moves.Update, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.seq > 0
}

// Run delivers queued updates until ctx is cancelled or Close is called.
// After Close, updates already queued are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-d.queue:
			d.deliver(ctx, u)
		case <-d.quit:
			for {
				select {
				case u := <-d.queue:
					d.deliver(ctx, u)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, u moves.Update) {
	if err := d.sink.Send(ctx, u); err != nil {
		d.metrics.DispatchFailure()
		d.logger.Warn("dispatch: delivery failed", "seq", u.Seq, "plies", len(u.Moves), "error", err)
		return
	}
	d.metrics.Dispatch(len(u.Moves))
	d.logger.Debug("dispatch: delivered", "seq", u.Seq, "plies", len(u.Moves))
}

// Close stops accepting updates. It does not close the sink.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.quit) })
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }
