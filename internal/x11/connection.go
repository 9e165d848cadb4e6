package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Connection manages the X11 connection and core X resources
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window

	compositeMajor uint32
	compositeMinor uint32
}

// NewConnection establishes a connection to the X11 server and initializes
// the Composite extension
func NewConnection() (*Connection, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, err
	}

	c := &Connection{
		XUtil: xu,
		Root:  xu.RootWin(),
	}
	if err := c.initComposite(); err != nil {
		xu.Conn().Close()
		return nil, err
	}
	return c, nil
}

func (c *Connection) initComposite() error {
	conn := c.XUtil.Conn()
	if err := composite.Init(conn); err != nil {
		return fmt.Errorf("composite extension unavailable: %w", err)
	}

	reply, err := composite.QueryVersion(conn, 0, 4).Reply()
	if err != nil {
		return fmt.Errorf("failed to query composite version: %w", err)
	}
	c.compositeMajor = reply.MajorVersion
	c.compositeMinor = reply.MinorVersion
	return nil
}

// CompositeVersion returns the Composite extension version the server agreed to.
func (c *Connection) CompositeVersion() string {
	return fmt.Sprintf("%d.%d", c.compositeMajor, c.compositeMinor)
}

// RedirectSubwindows asks the server to render top-level windows offscreen.
// Automatic redirection keeps the server painting them, so it can coexist
// with a compositor that draws the screen itself.
func (c *Connection) RedirectSubwindows() error {
	err := composite.RedirectSubwindowsChecked(c.XUtil.Conn(), c.Root, composite.RedirectAutomatic).Check()
	if err != nil {
		return fmt.Errorf("failed to redirect subwindows: %w", err)
	}
	return nil
}

// EventGate starts the X event loop on its own goroutine and returns the
// channels that serialize its callbacks with another loop: a value on
// before means a callback is about to run, a value on after means it
// finished, and quit closes when the X loop exits.
func (c *Connection) EventGate() (before, after, quit <-chan struct{}) {
	b, a, q := xevent.MainPing(c.XUtil)
	return b, a, q
}

// Quit stops the X event loop started by EventGate.
func (c *Connection) Quit() {
	xevent.Quit(c.XUtil)
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
