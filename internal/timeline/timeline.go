// Package timeline sequences frame-numbered animations on top of a timer
// pool.
//
// A Timeline plays frames 0..TotalFrames at a fixed rate. It registers a
// recurring entry with its Scheduler while playing (and a one-shot entry
// while waiting out a start delay) and turns raw ticks into lifecycle
// events: Started, NewFrame, Paused, Completed and MarkerReached.
//
// Ticks that arrive late advance several frames at once; NewFrame then
// reports only the frame reached, but markers on every frame passed are
// still delivered. The terminal frame is always reported exactly.
//
// The state machine:
//
//	        Start (delay)          delay elapsed
//	Idle ─────────────────► Delayed ─────────────► Playing
//	  │                                               ▲ │
//	  └──────────────── Start (no delay) ─────────────┘ │
//	                                                    │ Pause / Stop / completion
//	                                                    ▼
//	                                             Paused / Stopped
package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/1broseidon/compfx/internal/timerpool"
)

// DefaultRate is the rate of timelines created with NewForDuration.
const DefaultRate = 60

var (
	// ErrInvalidRate is returned for a zero rate.
	ErrInvalidRate = errors.New("timeline: rate must be positive")
	// ErrInvalidFrames is returned for a zero or negative frame count.
	ErrInvalidFrames = errors.New("timeline: total frames must be positive")
	// ErrInvalidDuration is returned for a zero or negative duration.
	ErrInvalidDuration = errors.New("timeline: duration must be positive")
)

// Scheduler is the timer pool a timeline registers its ticks with.
type Scheduler interface {
	Add(rate uint, fn timerpool.TickFunc, data any, release timerpool.ReleaseFunc) (timerpool.ID, error)
	AddTimeout(delay time.Duration, fn timerpool.TickFunc, data any, release timerpool.ReleaseFunc) (timerpool.ID, error)
	Remove(id timerpool.ID)
	Now() time.Time
}

var _ Scheduler = (*timerpool.Pool)(nil)

// Direction is the direction frames advance in.
type Direction int

const (
	// Forward plays from frame 0 to TotalFrames.
	Forward Direction = iota
	// Backward plays from TotalFrames to frame 0.
	Backward
)

// String returns a human-readable representation of the direction.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// State is the scheduling state of a timeline.
type State int

const (
	// Idle timelines have never been started.
	Idle State = iota
	// Delayed timelines are waiting out their start delay.
	Delayed
	// Playing timelines are registered on the recurring tick.
	Playing
	// Paused timelines keep their position.
	Paused
	// Stopped timelines were stopped or ran to completion and are rewound.
	Stopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Delayed:
		return "delayed"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Timeline is a frame sequencer. It is not safe for concurrent use; it
// belongs to the goroutine that runs its scheduler.
type Timeline struct {
	sched Scheduler

	direction Direction
	rate      uint
	frames    int
	delay     time.Duration
	loop      bool

	current  int
	prevTick time.Time
	skipped  int
	delta    time.Duration

	delayID timerpool.ID
	tickID  timerpool.ID
	state   State

	markers markerSet

	listeners      []listenerEntry
	nextListenerID int
}

// New creates an idle timeline of frames frames played at rate frames per
// second.
func New(sched Scheduler, frames int, rate uint) (*Timeline, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrames, frames)
	}
	if rate == 0 {
		return nil, ErrInvalidRate
	}
	return newTimeline(sched, frames, rate), nil
}

// NewForDuration creates an idle timeline lasting d at DefaultRate. d must
// cover at least one frame.
func NewForDuration(sched Scheduler, d time.Duration) (*Timeline, error) {
	frames := framesFor(d, DefaultRate)
	if frames <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, d)
	}
	return newTimeline(sched, frames, DefaultRate), nil
}

func newTimeline(sched Scheduler, frames int, rate uint) *Timeline {
	return &Timeline{
		sched:   sched,
		rate:    rate,
		frames:  frames,
		markers: newMarkerSet(),
	}
}

func framesFor(d time.Duration, rate uint) int {
	return int(d.Milliseconds() * int64(rate) / 1000)
}

// Clone returns an idle timeline with the same rate, frame count, loop,
// delay and direction. Markers, listeners and position are not copied.
func (tl *Timeline) Clone() *Timeline {
	c := newTimeline(tl.sched, tl.frames, tl.rate)
	c.loop = tl.loop
	c.delay = tl.delay
	c.direction = tl.direction
	return c
}

// Start begins playback, after the configured delay if there is one.
// Starting a timeline that is already delayed or playing, or one with no
// frames, does nothing.
func (tl *Timeline) Start() error {
	if tl.delayID != 0 || tl.tickID != 0 || tl.frames == 0 {
		return nil
	}
	tl.prevTick = time.Time{}

	if tl.delay > 0 {
		id, err := tl.sched.AddTimeout(tl.delay, tl.delayElapsed, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to schedule start delay: %w", err)
		}
		tl.delayID = id
		tl.state = Delayed
		return nil
	}

	if err := tl.register(); err != nil {
		return err
	}
	tl.emit(Event{Kind: EventStarted})
	return nil
}

func (tl *Timeline) register() error {
	id, err := tl.sched.Add(tl.rate, tl.tick, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to schedule timeline tick: %w", err)
	}
	tl.tickID = id
	tl.state = Playing
	return nil
}

func (tl *Timeline) delayElapsed(any) bool {
	tl.delayID = 0
	if err := tl.register(); err != nil {
		tl.state = Stopped
		return false
	}
	tl.emit(Event{Kind: EventStarted})
	return false
}

// Pause stops ticking and keeps the current frame.
func (tl *Timeline) Pause() {
	tl.unregister()
	tl.state = Paused
	tl.emit(Event{Kind: EventPaused})
}

// Stop pauses and rewinds.
func (tl *Timeline) Stop() {
	tl.Pause()
	tl.Rewind()
	tl.state = Stopped
}

// Dispose unregisters the timeline from its scheduler and drops listeners.
// No events are emitted.
func (tl *Timeline) Dispose() {
	tl.unregister()
	tl.listeners = nil
}

func (tl *Timeline) unregister() {
	if tl.delayID != 0 {
		tl.sched.Remove(tl.delayID)
		tl.delayID = 0
	}
	if tl.tickID != 0 {
		tl.sched.Remove(tl.tickID)
		tl.tickID = 0
	}
	tl.prevTick = time.Time{}
}

// Rewind moves to the rest position of the current direction: frame 0
// going forward, TotalFrames going backward.
func (tl *Timeline) Rewind() {
	if tl.direction == Forward {
		tl.Advance(0)
	} else {
		tl.Advance(tl.frames)
	}
}

// Skip moves n frames in the current direction without emitting events.
// Running off the far end wraps to frame 1 (forward) or TotalFrames-1
// (backward). A negative n moves back and stops at the rest frame.
func (tl *Timeline) Skip(n int) {
	if tl.direction == Forward {
		tl.current += n
		if tl.current > tl.frames {
			tl.current = 1
		}
	} else {
		tl.current -= n
		if tl.current < 1 && n > 0 {
			tl.current = tl.frames - 1
		}
	}
	tl.current = clamp(tl.current, 0, tl.frames)
}

// Advance sets the current frame, clamped to [0, TotalFrames], without
// emitting events.
func (tl *Timeline) Advance(frame int) {
	tl.current = clamp(frame, 0, tl.frames)
}

// tick runs on every pool dispatch while playing.
func (tl *Timeline) tick(any) bool {
	now := tl.sched.Now()
	n := 1
	if tl.prevTick.IsZero() {
		tl.skipped = 0
		tl.delta = 0
	} else {
		tl.delta = now.Sub(tl.prevTick)
		if step := tl.frameMillis(); tl.delta.Milliseconds()/step > 1 {
			n = int(tl.delta.Milliseconds() / step)
		}
		tl.skipped = n - 1
	}
	tl.prevTick = now

	prev := tl.current
	if tl.direction == Forward {
		tl.current += n
	} else {
		tl.current -= n
	}

	if !tl.pastEnd() {
		cur := tl.current
		tl.emit(Event{Kind: EventNewFrame, Frame: cur})
		tl.emitMarkers(prev, cur)
		return tl.tickID != 0
	}

	saved := tl.direction
	overflow := tl.current
	end := tl.endFrame()
	tl.current = end

	tl.emit(Event{Kind: EventNewFrame, Frame: end})
	tl.emitMarkers(prev, end)
	if tl.current != end {
		// a listener moved the playhead; keep going from there
		return tl.tickID != 0
	}

	if !tl.loop && tl.tickID != 0 {
		// removed before Completed so its listeners may restart us
		tl.sched.Remove(tl.tickID)
		tl.tickID = 0
	}
	tl.emit(Event{Kind: EventCompleted})
	if tl.current != end {
		return tl.tickID != 0
	}

	if tl.loop {
		// a stall may cover several play-throughs; carry only the remainder
		if saved == Forward {
			tl.current = (overflow - tl.frames) % tl.frames
		} else {
			tl.current = tl.frames - (-overflow)%tl.frames
		}
		if tl.direction != saved {
			tl.current = tl.frames - tl.current
		}
		tl.emitMarkers(tl.restFrame(), tl.current)
		return tl.tickID != 0
	}

	tl.Rewind()
	if tl.tickID == 0 && tl.delayID == 0 {
		tl.prevTick = time.Time{}
		tl.state = Stopped
	}
	return false
}

func (tl *Timeline) pastEnd() bool {
	if tl.direction == Forward {
		return tl.current >= tl.frames
	}
	return tl.current <= 0
}

func (tl *Timeline) endFrame() int {
	if tl.direction == Forward {
		return tl.frames
	}
	return 0
}

func (tl *Timeline) restFrame() int {
	if tl.direction == Forward {
		return 0
	}
	return tl.frames
}

// frameMillis is the nominal length of one frame in whole milliseconds.
func (tl *Timeline) frameMillis() int64 {
	ms := int64(1000 / tl.rate)
	if ms < 1 {
		ms = 1
	}
	return ms
}

// IsPlaying reports whether the timeline is registered on its tick.
func (tl *Timeline) IsPlaying() bool { return tl.tickID != 0 }

// State returns the scheduling state.
func (tl *Timeline) State() State { return tl.state }

// CurrentFrame returns the current frame.
func (tl *Timeline) CurrentFrame() int { return tl.current }

// Progress returns CurrentFrame/TotalFrames in [0, 1] while playing. At
// rest it returns 0 going forward and 1 going backward.
func (tl *Timeline) Progress() float64 {
	if tl.tickID == 0 {
		if tl.direction == Forward {
			return 0
		}
		return 1
	}
	p := float64(tl.current) / float64(tl.frames)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Delta returns the time covered by the last tick.
func (tl *Timeline) Delta() time.Duration { return tl.delta }

// SkippedFrames returns how many frames the last tick advanced past
// without reporting them through NewFrame.
func (tl *Timeline) SkippedFrames() int { return tl.skipped }

// Rate returns the frame rate.
func (tl *Timeline) Rate() uint { return tl.rate }

// SetRate changes the frame rate. A playing timeline re-registers its tick
// at the new rate and keeps its position; TotalFrames is not rescaled.
func (tl *Timeline) SetRate(rate uint) error {
	if rate == 0 {
		return ErrInvalidRate
	}
	if rate == tl.rate {
		return nil
	}
	tl.rate = rate
	if tl.tickID != 0 {
		tl.sched.Remove(tl.tickID)
		tl.tickID = 0
		return tl.register()
	}
	return nil
}

// TotalFrames returns the number of frames in one play-through.
func (tl *Timeline) TotalFrames() int { return tl.frames }

// SetTotalFrames changes the frame count, clamping the current frame.
func (tl *Timeline) SetTotalFrames(frames int) error {
	if frames <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrames, frames)
	}
	tl.frames = frames
	tl.current = clamp(tl.current, 0, frames)
	return nil
}

// Duration returns the length of one play-through at the current rate.
func (tl *Timeline) Duration() time.Duration {
	return time.Duration(int64(tl.frames)*1000/int64(tl.rate)) * time.Millisecond
}

// SetDuration sets TotalFrames to cover d at the current rate. A duration
// shorter than one frame is rejected and the frame count kept.
func (tl *Timeline) SetDuration(d time.Duration) error {
	frames := framesFor(d, tl.rate)
	if frames <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidDuration, d)
	}
	tl.frames = frames
	tl.current = clamp(tl.current, 0, tl.frames)
	return nil
}

// Delay returns the start delay.
func (tl *Timeline) Delay() time.Duration { return tl.delay }

// SetDelay sets how long Start waits before the first tick. It applies to
// the next Start.
func (tl *Timeline) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	tl.delay = d
}

// Loop reports whether the timeline restarts after completing.
func (tl *Timeline) Loop() bool { return tl.loop }

// SetLoop sets whether the timeline restarts after completing.
func (tl *Timeline) SetLoop(loop bool) { tl.loop = loop }

// Direction returns the playback direction.
func (tl *Timeline) Direction() Direction { return tl.direction }

// SetDirection changes the playback direction. Turning backward from
// frame 0 moves to TotalFrames so the reverse run is a full play-through.
func (tl *Timeline) SetDirection(d Direction) {
	tl.direction = d
	if d == Backward && tl.current == 0 {
		tl.current = tl.frames
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
