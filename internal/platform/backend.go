// Package platform hides the window system behind the operations the
// surface host needs: display discovery and overlay window control.
package platform

import "errors"

// ErrUnknownWindow is returned for a WindowID the backend does not own.
var ErrUnknownWindow = errors.New("platform: unknown window")

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Display describes a physical display and its usable work area.
type Display struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Bounds Rect   `json:"bounds"`
	Usable Rect   `json:"usable"`
}

// Backend abstracts window-system operations across platforms.
type Backend interface {
	Displays() ([]Display, error)
	// CreateOverlay creates a hidden, input-transparent overlay window.
	CreateOverlay(name string, bounds Rect) (WindowID, error)
	DestroyOverlay(win WindowID) error
	SetInputPassthrough(win WindowID, passthrough bool) error
	MoveResize(win WindowID, bounds Rect) error
	SetVisible(win WindowID, visible bool) error
	Raise(win WindowID) error
}
