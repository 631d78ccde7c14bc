//go:build linux

package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/overlayshell/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// LinuxBackend wraps an X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection

	mu sync.Mutex
	// accepting holds overlays whose input region covers the window.
	accepting map[WindowID]bool
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn, accepting: make(map[WindowID]bool)}
}

// NewLinuxBackendFromDisplay opens a fresh X11 connection.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return NewLinuxBackend(conn), nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// EventLoop runs the X11 event loop until Quit.
func (b *LinuxBackend) EventLoop() {
	if b != nil && b.conn != nil {
		b.conn.EventLoop()
	}
}

// Quit stops EventLoop.
func (b *LinuxBackend) Quit() {
	if b != nil && b.conn != nil {
		b.conn.Quit()
	}
}

// XUtil returns the underlying xgbutil connection for hotkey binding.
func (b *LinuxBackend) XUtil() *xgbutil.XUtil {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.XUtil
}

// RootWindow returns the X11 root window ID.
func (b *LinuxBackend) RootWindow() xproto.Window {
	if b == nil || b.conn == nil {
		return 0
	}
	return b.conn.Root
}

// Displays returns all active displays sorted by ID.
func (b *LinuxBackend) Displays() ([]Display, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}

	monitors, err := conn.GetMonitors()
	if err != nil {
		return nil, err
	}

	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		displays = append(displays, displayFromMonitor(m))
	}
	sort.Slice(displays, func(i, j int) bool {
		return displays[i].ID < displays[j].ID
	})
	return displays, nil
}

// CreateOverlay creates an unmapped, click-through overlay window.
func (b *LinuxBackend) CreateOverlay(name string, bounds Rect) (WindowID, error) {
	conn, err := b.connection()
	if err != nil {
		return 0, err
	}
	win, err := conn.CreateOverlay(name, bounds.X, bounds.Y, bounds.Width, bounds.Height)
	if err != nil {
		return 0, err
	}
	if err := conn.SetInputPassthrough(win, true); err != nil && err != x11.ErrNoShape {
		_ = conn.DestroyOverlay(win)
		return 0, fmt.Errorf("set overlay input region: %w", err)
	}
	return WindowID(win), nil
}

// DestroyOverlay destroys an overlay window.
func (b *LinuxBackend) DestroyOverlay(win WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.accepting, win)
	b.mu.Unlock()
	return conn.DestroyOverlay(xproto.Window(win))
}

// SetInputPassthrough toggles whether pointer input falls through win.
func (b *LinuxBackend) SetInputPassthrough(win WindowID, passthrough bool) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if err := conn.SetInputPassthrough(xproto.Window(win), passthrough); err != nil {
		return err
	}
	b.mu.Lock()
	if passthrough {
		delete(b.accepting, win)
	} else {
		b.accepting[win] = true
	}
	b.mu.Unlock()
	return nil
}

// MoveResize moves and resizes win. The input region is rebuilt so an
// input-accepting overlay keeps covering its full area.
func (b *LinuxBackend) MoveResize(win WindowID, bounds Rect) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if err := conn.MoveResizeOverlay(xproto.Window(win), bounds.X, bounds.Y, bounds.Width, bounds.Height); err != nil {
		return err
	}
	b.mu.Lock()
	accepting := b.accepting[win]
	b.mu.Unlock()
	if accepting {
		return conn.SetInputPassthrough(xproto.Window(win), false)
	}
	return nil
}

// SetVisible maps or unmaps win.
func (b *LinuxBackend) SetVisible(win WindowID, visible bool) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.SetMapped(xproto.Window(win), visible)
}

// Raise restacks win above its siblings.
func (b *LinuxBackend) Raise(win WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.Raise(xproto.Window(win))
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}

func displayFromMonitor(m x11.Monitor) Display {
	return Display{
		ID:     m.ID,
		Name:   m.Name,
		Bounds: Rect{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height},
		Usable: Rect{X: m.UsableX, Y: m.UsableY, Width: m.UsableWidth, Height: m.UsableHeight},
	}
}
