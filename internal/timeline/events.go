package timeline

import "fmt"

// EventKind identifies a timeline lifecycle event.
type EventKind int

const (
	// EventStarted is emitted when ticking begins, after any start delay.
	EventStarted EventKind = iota
	// EventNewFrame is emitted once per tick with the frame reached.
	EventNewFrame
	// EventPaused is emitted by Pause and Stop.
	EventPaused
	// EventCompleted is emitted when a play-through reaches its terminal frame.
	EventCompleted
	// EventMarkerReached is emitted for every marker on a frame passed by a tick.
	EventMarkerReached
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventNewFrame:
		return "new-frame"
	case EventPaused:
		return "paused"
	case EventCompleted:
		return "completed"
	case EventMarkerReached:
		return "marker-reached"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered synchronously to listeners while the pool dispatches.
type Event struct {
	Kind EventKind
	// Frame is set for EventNewFrame and EventMarkerReached.
	Frame int
	// Marker is set for EventMarkerReached.
	Marker string
}

// Listener receives timeline events.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// AddListener registers fn for every event of the timeline. Listeners run
// in registration order. Returns an unsubscribe function.
func (tl *Timeline) AddListener(fn Listener) func() {
	tl.nextListenerID++
	id := tl.nextListenerID
	tl.listeners = append(tl.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range tl.listeners {
			if l.id == id {
				tl.listeners = append(tl.listeners[:i:i], tl.listeners[i+1:]...)
				return
			}
		}
	}
}

func (tl *Timeline) emit(ev Event) {
	// listeners may unsubscribe while being notified
	listeners := tl.listeners
	for _, l := range listeners {
		l.fn(ev)
	}
}
