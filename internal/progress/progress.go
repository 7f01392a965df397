// Package progress implements a periodic diagnostic counter: a single
// atomic line counter, sampled and reset by a ticker, written straight
// to stderr rather than through the ambient logrus logger. This is the
// one place ambient logging is deliberately not used, in favor of a
// plain callback for this kind of human-facing, high-frequency status
// line.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// DefaultInterval is the default sampling period.
const DefaultInterval = 60 * time.Second

// Monitor accumulates a line count via Add and periodically reports the
// delta since the last tick, then resets to zero — lines processed in
// the last interval, never a running cumulative total.
type Monitor struct {
	count    uint64
	w        io.Writer
	interval time.Duration
	onTick   func(delta uint64)

	stop chan struct{}
	done chan struct{}
}

// New returns a Monitor writing to w at interval (DefaultInterval if
// zero). onTick, if non-nil, is called with the same delta reported to
// w on every tick — the hook the optional Prometheus lines counter is
// wired through, keeping the hot Add() path free of any metrics
// dependency.
func New(w io.Writer, interval time.Duration, onTick func(delta uint64)) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		w:        w,
		interval: interval,
		onTick:   onTick,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Add increments the counter by n. Safe for concurrent use; this is the
// only operation called from the hot line-processing path, and it never
// calls time.Now() or does anything beyond a single atomic add.
func (m *Monitor) Add(n uint64) {
	atomic.AddUint64(&m.count, n)
}

// Run ticks until Stop is called, writing one diagnostic line per tick.
// Intended to run in its own goroutine for the lifetime of a pipeline
// run.
func (m *Monitor) Run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.report()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) report() {
	delta := atomic.SwapUint64(&m.count, 0)
	fmt.Fprintf(m.w, "lpi: %d lines/%.0fs\n", delta, m.interval.Seconds())
	if m.onTick != nil {
		m.onTick(delta)
	}
}

// Stop halts Run and blocks until it has returned, flushing one final
// report of whatever accumulated since the last tick.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
	m.report()
}
