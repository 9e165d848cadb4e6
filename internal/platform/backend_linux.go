//go:build linux

package platform

import (
	"fmt"
	"strings"

	"github.com/1broseidon/compfx/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// LinuxBackend wraps an existing X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn}
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh
// X11 connection and redirecting top-level windows through Composite.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	if err := conn.RedirectSubwindows(); err != nil {
		conn.Close()
		return nil, err
	}
	return &LinuxBackend{conn: conn}, nil
}

// Disconnect stops the X event loop and closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Quit()
		b.conn.Close()
	}
}

// EventGate starts the X event loop and returns its serialization channels.
func (b *LinuxBackend) EventGate() (before, after, quit <-chan struct{}) {
	return b.conn.EventGate()
}

// CompositeVersion reports the negotiated Composite extension version.
func (b *LinuxBackend) CompositeVersion() string {
	if b == nil || b.conn == nil {
		return ""
	}
	return b.conn.CompositeVersion()
}

// Describe returns metadata for a window. It fails once the window is gone.
func (b *LinuxBackend) Describe(windowID WindowID) (Window, error) {
	conn, err := b.connection()
	if err != nil {
		return Window{}, err
	}
	xid := xproto.Window(windowID)
	bounds, ok := b.windowRect(xid)
	if !ok {
		return Window{}, fmt.Errorf("window %d not found", windowID)
	}
	return Window{
		ID:     windowID,
		AppID:  b.windowAppID(xid),
		Title:  b.windowTitle(xid),
		Bounds: bounds,
		Normal: conn.IsNormalWindow(xid),
	}, nil
}

// SetOpacity sets _NET_WM_WINDOW_OPACITY on the window.
func (b *LinuxBackend) SetOpacity(windowID WindowID, opacity float64) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if err := conn.SetOpacity(xproto.Window(windowID), opacity); err != nil {
		return fmt.Errorf("failed to set opacity of window %d: %w", windowID, err)
	}
	return nil
}

// Watch routes root-window substructure events to fn. fn runs on the X
// event goroutine, serialized with the main loop through EventGate.
func (b *LinuxBackend) Watch(fn func(WindowEvent)) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.WatchWindows(x11.WindowHandlers{
		Mapped: func(win xproto.Window, overrideRedirect bool) {
			fn(WindowEvent{Kind: WindowMapped, Window: WindowID(win), OverrideRedirect: overrideRedirect})
		},
		Unmapped: func(win xproto.Window) {
			fn(WindowEvent{Kind: WindowUnmapped, Window: WindowID(win)})
		},
		Destroyed: func(win xproto.Window) {
			fn(WindowEvent{Kind: WindowDestroyed, Window: WindowID(win)})
		},
	})
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}

func (b *LinuxBackend) windowRect(windowID xproto.Window) (Rect, bool) {
	conn := b.conn
	geom, err := xproto.GetGeometry(conn.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return Rect{}, false
	}

	translate, err := xproto.TranslateCoordinates(
		conn.XUtil.Conn(),
		windowID,
		conn.Root,
		0, 0,
	).Reply()
	if err != nil {
		return Rect{}, false
	}

	return Rect{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, true
}

func (b *LinuxBackend) windowAppID(windowID xproto.Window) string {
	wmClass, err := icccm.WmClassGet(b.conn.XUtil, windowID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wmClass.Class)
}

func (b *LinuxBackend) windowTitle(windowID xproto.Window) string {
	title, err := ewmh.WmNameGet(b.conn.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(b.conn.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	return ""
}
