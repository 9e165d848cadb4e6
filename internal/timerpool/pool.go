// Package timerpool multiplexes many frame-rate timers onto a single
// event-loop source.
//
// Every entry carries a frameclock.Interval. The pool keeps entries sorted
// by expiration so that one Prepare/Check pass only looks at the front of
// the list, and dispatches ready entries one at a time from the head.
// Callbacks may add and remove entries, including their own, while they
// run: the entry being dispatched is moved to a separate dispatched list and
// holds an extra reference until its callback returns.
package timerpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/1broseidon/compfx/internal/frameclock"
	"github.com/1broseidon/compfx/internal/mainloop"
)

// ErrInvalidRate is returned when a timer is added with a zero rate or a
// non-positive timeout.
var ErrInvalidRate = errors.New("timerpool: rate must be positive")

// ID identifies a pool entry. IDs are never reused within a pool; zero is
// never a valid ID.
type ID uint64

// TickFunc is called on every tick with the data passed to Add. Returning
// false removes the entry.
type TickFunc func(data any) bool

// ReleaseFunc is called with the entry's data once the entry is freed.
type ReleaseFunc func(data any)

// Host is the event loop a pool attaches its single source to.
type Host interface {
	Attach(src mainloop.Source, priority int) mainloop.SourceID
	Detach(id mainloop.SourceID)
}

// Config holds configuration for a pool.
type Config struct {
	// Priority is the host-loop priority of the pool's source.
	Priority int
	// Clock defaults to the system clock.
	Clock  frameclock.Clock
	Logger *slog.Logger
}

// Stats summarises pool activity.
type Stats struct {
	Entries    int    `json:"entries"`
	Ready      int    `json:"ready"`
	Dispatches uint64 `json:"dispatches"`
	Resyncs    uint64 `json:"resyncs"`
}

// EntryInfo describes one entry for inspection.
type EntryInfo struct {
	ID     ID            `json:"id"`
	Period time.Duration `json:"period"`
	Frames int64         `json:"frames"`
	Master bool          `json:"master"`
	Ready  bool          `json:"ready"`
}

// Pool is a sorted collection of periodic timers sharing one host source.
// A Pool is not safe for concurrent use; it belongs to the goroutine that
// runs its host loop.
type Pool struct {
	host     Host
	sourceID mainloop.SourceID
	clock    frameclock.Clock
	logger   *slog.Logger

	slots []slot
	free  []int
	ids   map[ID]int

	active     []int
	dispatched []int
	ready      int
	nextID     ID

	dispatching bool
	dispatches  uint64
	resyncs     uint64
}

// New creates an empty pool and attaches it to host at cfg.Priority. A nil
// host leaves the pool detached; the caller then drives Prepare, Check and
// Dispatch itself.
func New(host Host, cfg Config) *Pool {
	clock := cfg.Clock
	if clock == nil {
		clock = frameclock.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		host:   host,
		clock:  clock,
		logger: logger,
		ids:    make(map[ID]int),
	}
	if host != nil {
		p.sourceID = host.Attach(p, cfg.Priority)
	}
	return p
}

// Now returns the pool's current time.
func (p *Pool) Now() time.Time { return p.clock.Now() }

// Add registers a timer ticking rate times per second and returns its ID.
func (p *Pool) Add(rate uint, fn TickFunc, data any, release ReleaseFunc) (ID, error) {
	if rate == 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidRate, rate)
	}
	return p.add(frameclock.NewInterval(p.clock.Now(), rate), fn, data, release), nil
}

// AddTimeout registers a timer whose period is delay. The entry repeats
// until fn returns false; one-shot timers return false on the first tick.
func (p *Pool) AddTimeout(delay time.Duration, fn TickFunc, data any, release ReleaseFunc) (ID, error) {
	if delay <= 0 {
		return 0, fmt.Errorf("%w: got timeout %v", ErrInvalidRate, delay)
	}
	return p.add(frameclock.NewTimeoutInterval(p.clock.Now(), delay), fn, data, release), nil
}

func (p *Pool) add(iv *frameclock.Interval, fn TickFunc, data any, release ReleaseFunc) ID {
	p.nextID++
	id := p.nextID

	idx := p.alloc()
	p.slots[idx].entry = entry{
		id:       id,
		interval: iv,
		refs:     1,
		fn:       fn,
		data:     data,
		release:  release,
	}
	p.ids[id] = idx
	p.insertSorted(idx)
	return id
}

// Remove drops the entry with the given ID. The entry's release hook runs
// once no dispatch is holding it. Unknown IDs are ignored.
func (p *Pool) Remove(id ID) {
	idx, ok := p.ids[id]
	if !ok {
		return
	}
	delete(p.ids, id)

	if i := indexOf(p.active, idx); i >= 0 {
		if p.slots[idx].entry.flags&flagReady != 0 {
			p.ready--
		}
		p.active = removeAt(p.active, i)
	} else if i := indexOf(p.dispatched, idx); i >= 0 {
		p.dispatched = removeAt(p.dispatched, i)
	}
	p.unref(idx)
}

// SetMaster pins the entry ahead of all ordinary entries so it is never
// starved behind them. Unknown IDs are ignored.
func (p *Pool) SetMaster(id ID) {
	idx, ok := p.ids[id]
	if !ok {
		return
	}
	p.slots[idx].entry.flags |= flagMaster
	if i := indexOf(p.active, idx); i >= 0 {
		p.active = removeAt(p.active, i)
		p.insertSorted(idx)
	}
}

// Len returns the number of live entries.
func (p *Pool) Len() int { return len(p.ids) }

// Stats returns activity counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Entries:    len(p.ids),
		Ready:      p.ready,
		Dispatches: p.dispatches,
		Resyncs:    p.resyncs,
	}
}

// Entries returns the active entries in their current order.
func (p *Pool) Entries() []EntryInfo {
	out := make([]EntryInfo, 0, len(p.active))
	for _, idx := range p.active {
		e := &p.slots[idx].entry
		out = append(out, EntryInfo{
			ID:     e.id,
			Period: time.Duration(e.interval.Period()) * time.Millisecond,
			Frames: e.interval.Frames(),
			Master: e.flags&flagMaster != 0,
			Ready:  e.flags&flagReady != 0,
		})
	}
	return out
}

// Prepare reports whether the nearest entry is due and, if not, how long
// until it is. An empty pool waits forever.
func (p *Pool) Prepare() (bool, time.Duration) {
	now := p.clock.Now()
	timeout := mainloop.Infinite

	// Master entries are pinned ahead of the nearest ordinary entry, so
	// look past them to it.
	for _, idx := range p.active {
		e := &p.slots[idx].entry
		if e.flags&flagReady != 0 {
			return true, 0
		}
		ready, delay := p.prepareEntry(e, now)
		if ready {
			return true, 0
		}
		if timeout < 0 || delay < timeout {
			timeout = delay
		}
		if e.flags&flagMaster == 0 {
			break
		}
	}
	return false, timeout
}

// Check marks every due entry at the front of the list as ready. The scan
// stops at the first ordinary entry that is not due: the list is sorted,
// so nothing behind it can be due either.
func (p *Pool) Check() bool {
	now := p.clock.Now()
	skippedMaster := false

	for _, idx := range p.active {
		e := &p.slots[idx].entry
		if e.flags&flagReady != 0 {
			continue
		}
		if ready, _ := p.prepareEntry(e, now); ready {
			e.flags |= flagReady
			p.ready++
			continue
		}
		if e.flags&flagMaster != 0 {
			skippedMaster = true
			continue
		}
		break
	}

	if skippedMaster && p.ready > 0 {
		// ready entries behind a master that is not due move ahead of it
		sort.SliceStable(p.active, func(i, j int) bool {
			return p.compare(p.active[i], p.active[j]) < 0
		})
	}
	return p.ready > 0
}

// Dispatch runs the callbacks of all ready entries, then merges them back
// into the active list at their new positions.
func (p *Pool) Dispatch() {
	if p.dispatching {
		return
	}
	p.dispatching = true
	defer func() { p.dispatching = false }()

	if p.ready == 0 {
		p.Check()
	}

	for len(p.active) > 0 && p.ready > 0 {
		idx := p.active[0]
		e := &p.slots[idx].entry
		if e.flags&flagReady == 0 {
			break
		}

		// The extra reference keeps the slot alive if the callback
		// removes this entry; the dispatched list keeps it out of the
		// way of adds and removes on the active list.
		e.refs++
		e.flags &^= flagReady
		p.ready--
		p.active = removeAt(p.active, 0)
		p.dispatched = append(p.dispatched, idx)

		id, fn, data, iv := e.id, e.fn, e.data, e.interval
		cont := iv.Dispatch(func() bool { return fn(data) })
		p.dispatches++

		if !cont {
			// The callback may have removed the entry already. Nothing
			// but this loop appends to the dispatched list, so the entry
			// is either still on top or gone.
			if n := len(p.dispatched); n > 0 && p.dispatched[n-1] == idx {
				p.dispatched = p.dispatched[:n-1]
				delete(p.ids, id)
				p.unref(idx)
			}
		}
		p.unref(idx)
	}

	for i := len(p.dispatched) - 1; i >= 0; i-- {
		p.insertSorted(p.dispatched[i])
	}
	p.dispatched = p.dispatched[:0]
	p.ready = 0
	for _, idx := range p.active {
		p.slots[idx].entry.flags &^= flagReady
	}
}

// Finalize drops every entry and detaches the pool from its host.
func (p *Pool) Finalize() {
	lists := [][]int{p.active, p.dispatched}
	p.active = nil
	p.dispatched = nil
	p.ready = 0

	for _, list := range lists {
		for _, idx := range list {
			delete(p.ids, p.slots[idx].entry.id)
			p.unref(idx)
		}
	}
	if p.host != nil && p.sourceID != 0 {
		p.host.Detach(p.sourceID)
		p.sourceID = 0
	}
}

func (p *Pool) prepareEntry(e *entry, now time.Time) (bool, time.Duration) {
	before := e.interval.Resyncs()
	ready, delay := e.interval.Prepare(now)
	if e.interval.Resyncs() != before {
		p.resyncs++
		p.logger.Debug("timer resynced", "id", e.id, "interval", e.interval.String())
	}
	return ready, delay
}

// compare orders entries: ready before not ready, master before ordinary,
// then by expiration.
func (p *Pool) compare(a, b int) int {
	ea, eb := &p.slots[a].entry, &p.slots[b].entry
	if r := ea.rank() - eb.rank(); r != 0 {
		return r
	}
	return frameclock.CompareExpiration(ea.interval, eb.interval)
}

func (p *Pool) insertSorted(idx int) {
	i := sort.Search(len(p.active), func(i int) bool {
		return p.compare(idx, p.active[i]) <= 0
	})
	p.active = append(p.active, 0)
	copy(p.active[i+1:], p.active[i:])
	p.active[i] = idx
}

func indexOf(list []int, idx int) int {
	for i, v := range list {
		if v == idx {
			return i
		}
	}
	return -1
}

func removeAt(list []int, i int) []int {
	return append(list[:i], list[i+1:]...)
}
