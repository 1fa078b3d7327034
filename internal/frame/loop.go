// SPDX-License-Identifier: MIT

// Package frame provides the per-frame scheduling primitive shared by the
// feature extractor and the particle renderer. Every registered Ticker runs
// on the loop goroutine, in registration order, once per interval. Tickers
// must not block. Tests drive the same logic with Step and never Start.
package frame

import (
	"sync"
	"sync/atomic"
	"time"

	applog "whisperer/internal/log"
)

// Ticker is a unit of per-frame work.
type Ticker interface {
	Tick(now time.Time)
}

// TickFunc adapts a function to the Ticker interface.
type TickFunc func(now time.Time)

// Tick calls f(now).
func (f TickFunc) Tick(now time.Time) { f(now) }

type entry struct {
	id   uint64
	name string
	t    Ticker
}

// Loop is a fixed-cadence, single-goroutine scheduler.
type Loop struct {
	interval time.Duration

	mu      sync.Mutex // Protects entries, nextID, ticker and doneChan.
	entries []entry
	nextID  uint64

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ticks atomic.Uint64
}

// NewLoop creates a loop ticking at interval. A non-positive interval
// defaults to 16ms (~60Hz).
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("frame: invalid interval, defaulting to %s", interval)
	}
	return &Loop{interval: interval}
}

// Interval returns the tick interval.
func (l *Loop) Interval() time.Duration { return l.interval }

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Register appends t to the tick order and returns a function removing it.
// The returned function is safe to call more than once.
func (l *Loop) Register(name string, t Ticker) (unregister func()) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, entry{id: id, name: name, t: t})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

// Step runs one tick synchronously on the calling goroutine.
func (l *Loop) Step(now time.Time) {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()

	for _, e := range entries {
		l.run(e, now)
	}
	l.ticks.Add(1)
}

// run isolates a single ticker so a panic in one does not stop the frame.
func (l *Loop) run(e entry, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			applog.Errorf("frame: ticker %q panicked: %v", e.name, r)
		}
	}()
	e.t.Tick(now)
}

// Start launches the loop goroutine. Calling Start on a running loop is a
// no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.ticker != nil {
		l.mu.Unlock()
		applog.Warnf("frame: Start called but already running")
		return
	}

	l.ticker = time.NewTicker(l.interval)
	l.doneChan = make(chan struct{})
	l.stopOnce = sync.Once{}

	ticker := l.ticker
	doneChan := l.doneChan
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		applog.Debugf("frame: loop started (interval %s)", l.interval)
		for {
			select {
			case now := <-ticker.C:
				l.Step(now)
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-progress tick to finish. Safe to
// call multiple times.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.ticker == nil {
		l.mu.Unlock()
		return nil
	}
	l.stopOnce.Do(func() {
		close(l.doneChan)
		l.ticker.Stop()
		l.ticker = nil
	})
	l.mu.Unlock()

	l.wg.Wait()
	applog.Debugf("frame: loop stopped after %d ticks", l.Ticks())
	return nil
}

// Close implements io.Closer.
func (l *Loop) Close() error {
	return l.Stop()
}
