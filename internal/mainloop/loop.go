// Package mainloop runs the cooperative event loop that every frame source
// of the compositor shares. Sources are polled GLib style: each iteration
// asks every source how long it may sleep (Prepare), waits, asks which
// sources became ready (Check) and dispatches them in priority order.
//
// The loop goroutine is the only goroutine that may touch sources. Other
// goroutines hand work to it with Invoke; X event callbacks are serialised
// onto it through SetEventGate.
package mainloop

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Infinite is the timeout a source reports when it has nothing scheduled.
const Infinite time.Duration = -1

// ErrLoopRunning is returned when Run is called on a loop that is already running.
var ErrLoopRunning = errors.New("mainloop: loop is already running")

// Source is a pollable event source attached to a Loop.
type Source interface {
	// Prepare reports whether the source is ready without waiting and,
	// if not, the longest the loop may sleep before polling it again.
	Prepare() (ready bool, timeout time.Duration)
	// Check reports whether the source became ready during the wait.
	Check() bool
	// Dispatch runs the ready work of the source.
	Dispatch()
}

// SourceID identifies an attached source.
type SourceID uint64

type attachment struct {
	id       SourceID
	source   Source
	priority int
}

// Config holds configuration for the loop.
type Config struct {
	Logger *slog.Logger
}

// Loop multiplexes attached sources, invoked functions and gated external
// events onto one goroutine.
type Loop struct {
	logger  *slog.Logger
	sources []attachment
	nextID  SourceID

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	before <-chan struct{}
	after  <-chan struct{}
	quit   <-chan struct{}

	running bool
	stopped bool
}

// New creates an idle loop with no sources attached.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Attach registers src at the given priority. Lower values are dispatched
// first. Must be called on the loop goroutine (or before Run).
func (l *Loop) Attach(src Source, priority int) SourceID {
	l.nextID++
	a := attachment{id: l.nextID, source: src, priority: priority}
	i := sort.Search(len(l.sources), func(i int) bool {
		return l.sources[i].priority > priority
	})
	l.sources = append(l.sources, attachment{})
	copy(l.sources[i+1:], l.sources[i:])
	l.sources[i] = a
	l.logger.Debug("source attached", "source_id", a.id, "priority", priority)
	return a.id
}

// Detach removes a source. Unknown ids are ignored.
func (l *Loop) Detach(id SourceID) {
	for i, a := range l.sources {
		if a.id == id {
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			l.logger.Debug("source detached", "source_id", id)
			return
		}
	}
}

// Len returns the number of attached sources.
func (l *Loop) Len() int { return len(l.sources) }

// Invoke queues fn to run on the loop goroutine and wakes the loop. It is
// safe to call from any goroutine.
func (l *Loop) Invoke(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop goroutine and waits for it to return or for ctx
// to be cancelled.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Invoke(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetEventGate serialises an external event pump with the loop. Whenever
// before fires the loop blocks until after fires, so the pump's callbacks
// run while the loop is parked. A receive on quit stops the loop.
// xgbutil's xevent.MainPing channels fit this contract.
func (l *Loop) SetEventGate(before, after, quit <-chan struct{}) {
	l.before, l.after, l.quit = before, after, quit
}

// Run iterates until ctx is cancelled or the event gate quits.
func (l *Loop) Run(ctx context.Context) error {
	if l.running {
		return ErrLoopRunning
	}
	l.running = true
	l.stopped = false
	defer func() { l.running = false }()

	l.logger.Info("main loop started", "sources", len(l.sources))
	for !l.stopped {
		if err := ctx.Err(); err != nil {
			l.logger.Info("main loop stopped")
			return nil
		}
		l.iterate(ctx, true)
	}
	l.logger.Info("main loop stopped", "reason", "event gate closed")
	return nil
}

// Iterate runs one non-blocking iteration: sources that are ready now are
// dispatched and queued invocations run. It reports whether anything was
// dispatched.
func (l *Loop) Iterate() bool {
	return l.iterate(context.Background(), false)
}

func (l *Loop) iterate(ctx context.Context, block bool) bool {
	timeout := Infinite
	ready := make([]bool, len(l.sources))
	sources := append([]attachment(nil), l.sources...)
	anyReady := false

	for i, a := range sources {
		r, t := a.source.Prepare()
		if r {
			ready[i] = true
			anyReady = true
			continue
		}
		if t >= 0 && (timeout < 0 || t < timeout) {
			timeout = t
		}
	}

	if !anyReady && block && !l.hasPending() {
		l.wait(ctx, timeout)
	}

	ran := l.runPending()

	for i, a := range sources {
		if !ready[i] {
			ready[i] = a.source.Check()
		}
	}
	for i, a := range sources {
		if ready[i] && l.attached(a.id) {
			a.source.Dispatch()
			ran = true
		}
	}
	return ran
}

func (l *Loop) wait(ctx context.Context, timeout time.Duration) {
	var timer <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
	case <-timer:
	case <-l.wake:
	case <-l.before:
		<-l.after
	case <-l.quit:
		l.stopped = true
	}
}

func (l *Loop) hasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) > 0
}

func (l *Loop) runPending() bool {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending) > 0
}

func (l *Loop) attached(id SourceID) bool {
	for _, a := range l.sources {
		if a.id == id {
			return true
		}
	}
	return false
}
