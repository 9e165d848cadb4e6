package timerpool

import "github.com/1broseidon/compfx/internal/frameclock"

type flags uint8

const (
	flagReady flags = 1 << iota
	flagMaster
)

// entry is one timer. It lives in a pool-owned slot and is released when
// refs drops to zero: one reference belongs to the pool while the entry is
// registered, another is held for the duration of its own dispatch.
type entry struct {
	id       ID
	interval *frameclock.Interval
	flags    flags
	refs     int

	fn      TickFunc
	data    any
	release ReleaseFunc
}

func (e *entry) rank() int {
	r := 3
	if e.flags&flagReady != 0 {
		r -= 2
	}
	if e.flags&flagMaster != 0 {
		r--
	}
	return r
}

type slot struct {
	entry entry
	used  bool
}

func (p *Pool) alloc() int {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		p.slots[idx].used = true
		return idx
	}
	p.slots = append(p.slots, slot{used: true})
	return len(p.slots) - 1
}

func (p *Pool) unref(idx int) {
	e := &p.slots[idx].entry
	e.refs--
	if e.refs > 0 {
		return
	}

	release, data := e.release, e.data
	p.slots[idx] = slot{}
	p.free = append(p.free, idx)

	if release != nil {
		release(data)
	}
}
