package hotkeys

import (
	"errors"
	"reflect"
	"testing"

	"github.com/1broseidon/overlayshell/internal/logging"
)

type fakeActions struct {
	toggles  int
	restarts int
	err      error
}

func (f *fakeActions) ToggleOverlays() bool {
	f.toggles++
	return f.toggles%2 == 1
}

func (f *fakeActions) RestartHelpers() error {
	f.restarts++
	return f.err
}

func TestIgnoreMasks(t *testing.T) {
	tests := []struct {
		name string
		base []uint16
		want []uint16
	}{
		{"caps only", []uint16{2}, []uint16{0, 2}},
		{"caps and numlock", []uint16{2, 16}, []uint16{0, 2, 16, 18}},
		{"three locks", []uint16{2, 16, 128}, []uint16{0, 2, 16, 18, 128, 130, 144, 146}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ignoreMasks(tt.base); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ignoreMasks(%v) = %v, want %v", tt.base, got, tt.want)
			}
		})
	}
}

func TestBindings_SkipsEmptySequences(t *testing.T) {
	actions := &fakeActions{}
	got := Bindings{ToggleOverlays: "Mod4-o"}.callbacks(actions, logging.Discard())
	if len(got) != 1 || got[0].name != "toggle_overlays" || got[0].seq != "Mod4-o" {
		t.Fatalf("callbacks = %+v", got)
	}
	if n := len(Bindings{}.callbacks(actions, logging.Discard())); n != 0 {
		t.Fatalf("empty Bindings produced %d callbacks", n)
	}
}

func TestBindings_CallbacksRunActions(t *testing.T) {
	actions := &fakeActions{err: errors.New("helper missing")}
	binds := Bindings{ToggleOverlays: "Mod4-o", RestartHelpers: "Mod4-h"}.callbacks(actions, logging.Discard())
	if len(binds) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(binds))
	}
	for _, b := range binds {
		b.fn()
	}
	if actions.toggles != 1 || actions.restarts != 1 {
		t.Fatalf("toggles = %d, restarts = %d, want 1 each", actions.toggles, actions.restarts)
	}
}
