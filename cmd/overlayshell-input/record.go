package main

import (
	"fmt"
	"time"

	hook "github.com/robotn/gohook"
)

// Helper modes, matching the key-listener modes the daemon starts.
const (
	modeMouse   = "mouse"
	modeComplex = "complex"
)

// record is one line written to stdout.
type record struct {
	Type      string `json:"type"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Button    uint16 `json:"button,omitempty"`
	Clicks    uint16 `json:"clicks,omitempty"`
	Amount    uint16 `json:"amount,omitempty"`
	Rotation  int32  `json:"rotation,omitempty"`
	Direction uint8  `json:"direction,omitempty"`
	Keycode   uint16 `json:"keycode,omitempty"`
	Rawcode   uint16 `json:"rawcode,omitempty"`
	Key       string `json:"key,omitempty"`
	Mask      uint16 `json:"mask,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func parseMode(s string) (string, error) {
	switch s {
	case "", modeComplex:
		return modeComplex, nil
	case modeMouse:
		return modeMouse, nil
	}
	return "", fmt.Errorf("unknown mode %q (want %s or %s)", s, modeMouse, modeComplex)
}

// toRecord converts a hook event. Keyboard events are dropped in mouse
// mode. gohook reports a press as MouseHold and a completed click as
// MouseDown.
func toRecord(ev hook.Event, mode string) (record, bool) {
	r := record{Mask: ev.Mask, Timestamp: when(ev)}
	switch ev.Kind {
	case hook.MouseMove, hook.MouseDrag:
		r.Type = "mouse_move"
		if ev.Kind == hook.MouseDrag {
			r.Type = "mouse_drag"
		}
		r.X, r.Y = int(ev.X), int(ev.Y)
	case hook.MouseHold, hook.MouseUp, hook.MouseDown:
		switch ev.Kind {
		case hook.MouseHold:
			r.Type = "mouse_down"
		case hook.MouseUp:
			r.Type = "mouse_up"
		default:
			r.Type = "mouse_click"
		}
		r.X, r.Y = int(ev.X), int(ev.Y)
		r.Button = ev.Button
		r.Clicks = ev.Clicks
	case hook.MouseWheel:
		r.Type = "mouse_wheel"
		r.X, r.Y = int(ev.X), int(ev.Y)
		r.Amount = ev.Amount
		r.Rotation = ev.Rotation
		r.Direction = ev.Direction
	case hook.KeyDown, hook.KeyHold, hook.KeyUp:
		if mode == modeMouse {
			return record{}, false
		}
		switch ev.Kind {
		case hook.KeyHold:
			r.Type = "key_down"
		case hook.KeyUp:
			r.Type = "key_up"
		default:
			r.Type = "key_press"
		}
		r.Keycode = ev.Keycode
		r.Rawcode = ev.Rawcode
		r.Key = keyName(ev)
	default:
		return record{}, false
	}
	return r, true
}

// charUndefined is what libuiohook reports for keys without a character.
const charUndefined rune = 0xFFFF

func keyName(ev hook.Event) string {
	if ev.Keychar != 0 && ev.Keychar != charUndefined {
		return string(ev.Keychar)
	}
	return hook.RawcodetoKeychar(ev.Rawcode)
}

func when(ev hook.Event) int64 {
	if ev.When.IsZero() {
		return time.Now().UnixMilli()
	}
	return ev.When.UnixMilli()
}

// moveThrottle drops pointer motion arriving faster than every.
type moveThrottle struct {
	every time.Duration
	last  time.Time
}

func (t *moveThrottle) allow(r record, now time.Time) bool {
	if t.every <= 0 || (r.Type != "mouse_move" && r.Type != "mouse_drag") {
		return true
	}
	if !t.last.IsZero() && now.Sub(t.last) < t.every {
		return false
	}
	t.last = now
	return true
}
