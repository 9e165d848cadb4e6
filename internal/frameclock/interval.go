package frameclock

import (
	"fmt"
	"time"
)

// maxLag is how many ticks an interval may fall behind before it resyncs
// instead of replaying the backlog.
const maxLag = 2

// Interval tracks a single periodic timer: the reference start time and
// how many ticks have been delivered since then. Its rate is the fraction
// ticks/perMS, so whole-hertz rates and millisecond timeouts are both
// exact.
type Interval struct {
	start   time.Time
	ticks   int64
	perMS   int64
	frames  int64
	resyncs int
}

// NewInterval returns an interval ticking rate times per second, starting
// at now.
func NewInterval(now time.Time, rate uint) *Interval {
	return &Interval{start: now, ticks: int64(rate), perMS: 1000}
}

// NewTimeoutInterval returns an interval whose tick period is d, rounded
// to whole milliseconds with a minimum of one.
func NewTimeoutInterval(now time.Time, d time.Duration) *Interval {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return &Interval{start: now, ticks: 1, perMS: ms}
}

// Start returns the reference time the frame counter is measured from.
func (iv *Interval) Start() time.Time { return iv.start }

// Frames returns how many ticks have been delivered since Start.
func (iv *Interval) Frames() int64 { return iv.frames }

// Resyncs returns how many times the interval reset its baseline.
func (iv *Interval) Resyncs() int { return iv.resyncs }

// Period returns the nominal length of one tick in milliseconds.
func (iv *Interval) Period() int64 {
	return iv.perMS / iv.ticks
}

func (iv *Interval) String() string {
	if iv.perMS == 1000 {
		return fmt.Sprintf("interval(%dHz, frame %d)", iv.ticks, iv.frames)
	}
	return fmt.Sprintf("interval(every %dms, frame %d)", iv.perMS, iv.frames)
}

// Prepare reports whether the next tick is due at now. When it is not, the
// returned delay is the time left until it is.
//
// If time went backwards, or the consumer fell more than two ticks behind,
// the interval resyncs: its start moves to one tick before now and the
// counter resets, so at most one tick is delivered instead of the backlog.
func (iv *Interval) Prepare(now time.Time) (bool, time.Duration) {
	elapsed := now.Sub(iv.start).Milliseconds()
	target := elapsed * iv.ticks / iv.perMS

	if target < iv.frames || target-iv.frames > maxLag {
		// one tick, rounded up to a whole millisecond
		tick := (iv.perMS + iv.ticks - 1) / iv.ticks
		iv.start = now.Add(-time.Duration(tick) * time.Millisecond)
		iv.frames = 0
		iv.resyncs++
		return true, 0
	}
	if target > iv.frames {
		return true, 0
	}

	next := (iv.frames + 1) * iv.perMS / iv.ticks
	return false, time.Duration(next-elapsed) * time.Millisecond
}

// Dispatch runs fn and advances the frame counter if fn asks to continue.
func (iv *Interval) Dispatch(fn func() bool) bool {
	if !fn() {
		return false
	}
	iv.frames++
	return true
}

// CompareExpiration orders two intervals by a period-based proxy of their
// next expiration. It returns a negative number when a sorts first, a
// positive one when b does and zero when they tie.
//
// Each side's next tick is (frames+1) nominal periods; b's is shifted by
// the difference between the two start times in milliseconds.
func CompareExpiration(a, b *Interval) int {
	aNext := (a.frames + 1) * a.Period()
	bNext := (b.frames+1)*b.Period() + a.start.Sub(b.start).Milliseconds()

	switch {
	case aNext < bNext:
		return -1
	case aNext > bNext:
		return 1
	default:
		return 0
	}
}
