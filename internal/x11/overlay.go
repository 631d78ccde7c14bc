package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// overlayEvents are the events an overlay window listens for so that a
// renderer sharing the connection can track hover.
const overlayEvents = xproto.EventMaskExposure |
	xproto.EventMaskEnterWindow |
	xproto.EventMaskLeaveWindow |
	xproto.EventMaskPointerMotion

// CreateOverlay creates an unmapped override-redirect window covering the
// given rectangle. A 32-bit TrueColor visual is used when the server has
// one so the window can be transparent under a compositor.
func (c *Connection) CreateOverlay(name string, x, y, width, height int) (xproto.Window, error) {
	conn := c.XUtil.Conn()
	screen := c.XUtil.Screen()

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return 0, err
	}

	depth := screen.RootDepth
	visual := screen.RootVisual
	colormap := screen.DefaultColormap
	if argb, ok := c.argbVisual(); ok {
		cmap, err := xproto.NewColormapId(conn)
		if err != nil {
			return 0, err
		}
		if err := xproto.CreateColormapChecked(conn, xproto.ColormapAllocNone, cmap, c.Root, argb).Check(); err == nil {
			depth, visual, colormap = 32, argb, cmap
		}
	}

	// Value list order follows the mask bits, low to high.
	err = xproto.CreateWindowChecked(
		conn,
		depth,
		wid,
		c.Root,
		int16(x), int16(y),
		uint16(clampSize(width)), uint16(clampSize(height)),
		0,
		xproto.WindowClassInputOutput,
		visual,
		xproto.CwBackPixel|xproto.CwBorderPixel|xproto.CwOverrideRedirect|xproto.CwEventMask|xproto.CwColormap,
		[]uint32{0, 0, 1, overlayEvents, uint32(colormap)},
	).Check()
	if err != nil {
		return 0, fmt.Errorf("create overlay window: %w", err)
	}

	if name != "" {
		_ = icccm.WmNameSet(c.XUtil, wid, name)
		_ = ewmh.WmNameSet(c.XUtil, wid, name)
	}
	_ = ewmh.WmWindowTypeSet(c.XUtil, wid, []string{"_NET_WM_WINDOW_TYPE_DOCK"})
	return wid, nil
}

func (c *Connection) argbVisual() (xproto.Visualid, bool) {
	for _, d := range c.XUtil.Screen().AllowedDepths {
		if d.Depth != 32 {
			continue
		}
		for _, v := range d.Visuals {
			if v.Class == xproto.VisualClassTrueColor {
				return v.VisualId, true
			}
		}
	}
	return 0, false
}

// SetInputPassthrough makes win ignore pointer input (an empty input
// region) or accept it everywhere (the full window).
func (c *Connection) SetInputPassthrough(win xproto.Window, passthrough bool) error {
	if !c.hasShape {
		return ErrNoShape
	}
	conn := c.XUtil.Conn()

	var rects []xproto.Rectangle
	if !passthrough {
		geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
		if err != nil {
			return fmt.Errorf("get overlay geometry: %w", err)
		}
		rects = []xproto.Rectangle{{Width: geom.Width, Height: geom.Height}}
	}

	return shape.RectanglesChecked(conn, shape.SoSet, shape.SkInput, xproto.ClipOrderingUnsorted, win, 0, 0, rects).Check()
}

// MoveResizeOverlay sets the geometry of an overlay window.
func (c *Connection) MoveResizeOverlay(win xproto.Window, x, y, width, height int) error {
	return xproto.ConfigureWindowChecked(
		c.XUtil.Conn(),
		win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(int32(x)), uint32(int32(y)), uint32(clampSize(width)), uint32(clampSize(height))},
	).Check()
}

// SetMapped maps or unmaps win.
func (c *Connection) SetMapped(win xproto.Window, mapped bool) error {
	if mapped {
		return xproto.MapWindowChecked(c.XUtil.Conn(), win).Check()
	}
	return xproto.UnmapWindowChecked(c.XUtil.Conn(), win).Check()
}

// Raise restacks win above its siblings.
func (c *Connection) Raise(win xproto.Window) error {
	return xproto.ConfigureWindowChecked(
		c.XUtil.Conn(),
		win,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
}

// DestroyOverlay destroys win.
func (c *Connection) DestroyOverlay(win xproto.Window) error {
	return xproto.DestroyWindowChecked(c.XUtil.Conn(), win).Check()
}

func clampSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > 0xffff {
		return 0xffff
	}
	return n
}
