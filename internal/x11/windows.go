package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// WindowHandlers receives lifecycle notifications for children of the root
// window. Nil handlers are skipped.
type WindowHandlers struct {
	Mapped    func(win xproto.Window, overrideRedirect bool)
	Unmapped  func(win xproto.Window)
	Destroyed func(win xproto.Window)
}

// WatchWindows selects SubstructureNotify on the root window and routes map,
// unmap and destroy events of its children to h. Handlers run on the X
// event loop goroutine.
func (c *Connection) WatchWindows(h WindowHandlers) error {
	root := xwindow.New(c.XUtil, c.Root)
	if err := root.Listen(xproto.EventMaskSubstructureNotify); err != nil {
		return err
	}

	if h.Mapped != nil {
		xevent.MapNotifyFun(func(_ *xgbutil.XUtil, ev xevent.MapNotifyEvent) {
			h.Mapped(ev.Window, ev.OverrideRedirect)
		}).Connect(c.XUtil, c.Root)
	}
	if h.Unmapped != nil {
		xevent.UnmapNotifyFun(func(_ *xgbutil.XUtil, ev xevent.UnmapNotifyEvent) {
			h.Unmapped(ev.Window)
		}).Connect(c.XUtil, c.Root)
	}
	if h.Destroyed != nil {
		xevent.DestroyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
			h.Destroyed(ev.Window)
		}).Connect(c.XUtil, c.Root)
	}
	return nil
}

// SetOpacity writes _NET_WM_WINDOW_OPACITY. Values are clamped to [0, 1].
func (c *Connection) SetOpacity(windowID xproto.Window, opacity float64) error {
	return ewmh.WmWindowOpacitySet(c.XUtil, windowID, clampOpacity(opacity))
}

func clampOpacity(opacity float64) float64 {
	switch {
	case opacity < 0:
		return 0
	case opacity > 1:
		return 1
	}
	return opacity
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}

	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" {
			return true
		}
		// Reject desktop, dock, splash, etc.
		if t == "_NET_WM_WINDOW_TYPE_DESKTOP" ||
			t == "_NET_WM_WINDOW_TYPE_DOCK" ||
			t == "_NET_WM_WINDOW_TYPE_SPLASH" ||
			t == "_NET_WM_WINDOW_TYPE_NOTIFICATION" {
			return false
		}
	}

	// If no specific type is set, assume it's normal
	return len(types) == 0
}
