package platform

import "fmt"

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Window contains metadata and geometry for a top-level window.
type Window struct {
	ID     WindowID
	AppID  string
	Title  string
	Bounds Rect
	// Normal is false for docks, desktops, splash screens and notifications.
	Normal bool
}

// WindowEventKind identifies a top-level window lifecycle change.
type WindowEventKind int

const (
	WindowMapped WindowEventKind = iota
	WindowUnmapped
	WindowDestroyed
)

// String returns a human-readable representation of the event kind.
func (k WindowEventKind) String() string {
	switch k {
	case WindowMapped:
		return "mapped"
	case WindowUnmapped:
		return "unmapped"
	case WindowDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("WindowEventKind(%d)", int(k))
	}
}

// WindowEvent reports a lifecycle change of a top-level window.
type WindowEvent struct {
	Kind   WindowEventKind
	Window WindowID
	// OverrideRedirect is set for mapped popups and menus that bypass the
	// window manager.
	OverrideRedirect bool
}

// Backend abstracts the window-system operations compositing effects need.
type Backend interface {
	// Describe returns metadata for a window.
	Describe(windowID WindowID) (Window, error)
	// SetOpacity sets the composited opacity of a window in [0, 1].
	SetOpacity(windowID WindowID, opacity float64) error
	// Watch delivers top-level window events to fn until the backend is
	// disconnected.
	Watch(fn func(WindowEvent)) error
}
