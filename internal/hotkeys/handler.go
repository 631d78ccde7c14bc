// Package hotkeys binds global X11 key sequences to daemon actions.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Actions are the daemon operations a hotkey can trigger.
type Actions interface {
	ToggleOverlays() bool
	RestartHelpers() error
}

// Bindings maps key sequences such as "Mod4-Mod1-o" to actions. An empty
// sequence leaves the action unbound.
type Bindings struct {
	ToggleOverlays string
	RestartHelpers string
}

// X11 is implemented by backends that expose their X connection.
type X11 interface {
	XUtil() *xgbutil.XUtil
	RootWindow() xproto.Window
}

// Handler manages global keyboard shortcuts
type Handler struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	actions Actions
	logger  *slog.Logger
}

var ignoreModsOnce sync.Once

// NewHandler creates a hotkey handler on the backend's X connection.
func NewHandler(x X11, actions Actions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	xu := x.XUtil()
	ignoreModsOnce.Do(func() {
		configureIgnoreMods(xu)
	})
	return &Handler{
		xu:      xu,
		root:    x.RootWindow(),
		actions: actions,
		logger:  logger,
	}
}

// Register binds every non-empty sequence in b. Failures are joined so one
// bad sequence does not keep the others from working.
func (h *Handler) Register(b Bindings) error {
	var errs []error
	for _, bind := range b.callbacks(h.actions, h.logger) {
		if err := h.RegisterFunc(bind.seq, bind.fn); err != nil {
			errs = append(errs, fmt.Errorf("bind %s to %q: %w", bind.name, bind.seq, err))
			continue
		}
		h.logger.Info("hotkey registered", "action", bind.name, "keys", bind.seq)
	}
	return errors.Join(errs...)
}

// Unregister drops every binding on the root window.
func (h *Handler) Unregister() {
	keybind.Detach(h.xu, h.root)
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

type binding struct {
	name string
	seq  string
	fn   func()
}

func (b Bindings) callbacks(actions Actions, logger *slog.Logger) []binding {
	var out []binding
	if b.ToggleOverlays != "" {
		out = append(out, binding{"toggle_overlays", b.ToggleOverlays, func() {
			visible := actions.ToggleOverlays()
			logger.Info("overlays toggled", "visible", visible)
		}})
	}
	if b.RestartHelpers != "" {
		out = append(out, binding{"restart_helpers", b.RestartHelpers, func() {
			if err := actions.RestartHelpers(); err != nil {
				logger.Warn("restart helpers failed", "error", err)
				return
			}
			logger.Info("helpers restarted")
		}})
	}
	return out
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)
	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}
	xevent.IgnoreMods = ignoreMasks(base)
}

// ignoreMasks returns every combination of the lock modifiers in base,
// including the empty one.
func ignoreMasks(base []uint16) []uint16 {
	unique := map[uint16]struct{}{0: {}}
	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		unique[mask] = struct{}{}
	}

	out := make([]uint16, 0, len(unique))
	for mask := range unique {
		out = append(out, mask)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
