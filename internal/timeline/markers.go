package timeline

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrMarkerExists is returned when adding a marker under a name that
	// is already taken. The existing marker is kept.
	ErrMarkerExists = errors.New("timeline: marker already exists")
	// ErrMarkerOutOfRange is returned for a marker frame outside
	// [0, TotalFrames].
	ErrMarkerOutOfRange = errors.New("timeline: marker frame out of range")
	// ErrUnknownMarker is returned for operations on a missing marker.
	ErrUnknownMarker = errors.New("timeline: unknown marker")
)

// markerSet indexes markers by name and by frame.
type markerSet struct {
	byName  map[string]int
	byFrame map[int][]string
}

func newMarkerSet() markerSet {
	return markerSet{
		byName:  make(map[string]int),
		byFrame: make(map[int][]string),
	}
}

func (m *markerSet) add(name string, frame int) {
	m.byName[name] = frame
	names := append(m.byFrame[frame], name)
	sort.Strings(names)
	m.byFrame[frame] = names
}

func (m *markerSet) remove(name string) {
	frame := m.byName[name]
	delete(m.byName, name)
	names := m.byFrame[frame]
	for i, n := range names {
		if n == name {
			names = append(names[:i:i], names[i+1:]...)
			break
		}
	}
	if len(names) == 0 {
		delete(m.byFrame, frame)
		return
	}
	m.byFrame[frame] = names
}

// AddMarkerAtFrame names frame so that a MarkerReached event fires every
// time playback passes it.
func (tl *Timeline) AddMarkerAtFrame(name string, frame int) error {
	if frame < 0 || frame > tl.frames {
		return fmt.Errorf("%w: %q at frame %d of %d", ErrMarkerOutOfRange, name, frame, tl.frames)
	}
	if old, ok := tl.markers.byName[name]; ok {
		return fmt.Errorf("%w: %q at frame %d", ErrMarkerExists, name, old)
	}
	tl.markers.add(name, frame)
	return nil
}

// AddMarkerAtTime adds a marker at the frame reached d into playback at
// the current rate.
func (tl *Timeline) AddMarkerAtTime(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %q at %v", ErrMarkerOutOfRange, name, d)
	}
	return tl.AddMarkerAtFrame(name, framesFor(d, tl.rate))
}

// RemoveMarker deletes the named marker.
func (tl *Timeline) RemoveMarker(name string) error {
	if _, ok := tl.markers.byName[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMarker, name)
	}
	tl.markers.remove(name)
	return nil
}

// Markers returns the names of all markers, sorted.
func (tl *Timeline) Markers() []string {
	out := make([]string, 0, len(tl.markers.byName))
	for name := range tl.markers.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MarkersAt returns the names of the markers on frame, sorted.
func (tl *Timeline) MarkersAt(frame int) []string {
	return append([]string(nil), tl.markers.byFrame[frame]...)
}

// AdvanceToMarker moves the playhead to the named marker without emitting
// events.
func (tl *Timeline) AdvanceToMarker(name string) error {
	frame, ok := tl.markers.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMarker, name)
	}
	tl.Advance(frame)
	return nil
}

// emitMarkers fires MarkerReached for every marker strictly after from up
// to and including to, walking in whichever direction to lies.
func (tl *Timeline) emitMarkers(from, to int) {
	if len(tl.markers.byName) == 0 || from == to {
		return
	}
	step := 1
	if to < from {
		step = -1
	}
	for f := from + step; ; f += step {
		for _, name := range tl.MarkersAt(f) {
			tl.emit(Event{Kind: EventMarkerReached, Frame: f, Marker: name})
		}
		if f == to {
			return
		}
	}
}
