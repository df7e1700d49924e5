package observer

import (
	"slices"
	"time"

	"github.com/hazyhaar/movewatch/movewatch/internal/dom"
)

// pending is one record addressed to one subscription.
type pending struct {
	sub uint64
	rec dom.Record
}

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the quiet period before a flush. Default: 50ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 50 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer collects addressed records and hands them over in one piece
// when the window expires or the buffer fills. It is driven by a single
// goroutine.
type debouncer struct {
	cfg     debounceConfig
	buf     []pending
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]pending)
}

func newDebouncer(cfg debounceConfig, flushFn func([]pending)) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// add buffers ps. Returns true if the buffer filled and was flushed.
func (d *debouncer) add(ps ...pending) bool {
	d.buf = append(d.buf, ps...)
	if len(d.buf) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.buf) == 0 {
		return
	}
	buf := d.buf
	d.buf = nil
	d.flushFn(buf)
}

// group splits buf per subscription, in ascending subscription order, and
// compresses each group.
func group(buf []pending) ([]uint64, map[uint64][]dom.Record) {
	by := make(map[uint64][]dom.Record)
	var order []uint64
	for _, p := range buf {
		if _, ok := by[p.sub]; !ok {
			order = append(order, p.sub)
		}
		by[p.sub] = append(by[p.sub], p.rec)
	}
	slices.Sort(order)
	for id, recs := range by {
		by[id] = compress(recs)
	}
	return order, by
}

// compress drops records identical to the one before them. A run of rows
// appended to the same list carries no more information than one.
func compress(records []dom.Record) []dom.Record {
	if len(records) <= 1 {
		return records
	}
	out := make([]dom.Record, 0, len(records))
	for i, r := range records {
		if i > 0 && r == records[i-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}
