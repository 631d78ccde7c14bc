package arbiter

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/overlayshell/internal/clock"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeController) SetSurfaceInputTransparent(id string, transparent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s=%v", id, transparent))
	return f.err
}

func (f *fakeController) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recorder struct {
	events []string
}

func (r *recorder) capturer(id, surface string) Capturer {
	return Capturer{
		ID:        id,
		SurfaceID: surface,
		OnEnter:   func(ev *MouseEvent) { r.events = append(r.events, ev.InstanceID+":enter") },
		OnLeave:   func(ev *MouseEvent) { r.events = append(r.events, ev.InstanceID+":leave") },
		OnMove:    func(ev *MouseEvent) { r.events = append(r.events, ev.InstanceID+":move") },
	}
}

func newTestArbiter(t *testing.T) (*Arbiter, *fakeController, *clock.FakeClock) {
	t.Helper()
	ctrl := &fakeController{}
	clk := clock.Fake(time.Unix(0, 0))
	a := New(Config{Controller: ctrl, Clock: clk})
	t.Cleanup(a.Close)
	return a, ctrl, clk
}

func TestArbiter_EnterClearsTransparency(t *testing.T) {
	a, ctrl, _ := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", true)

	if want := []string{"i1:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if want := []string{"overlay-a=false"}; !reflect.DeepEqual(ctrl.snapshot(), want) {
		t.Fatalf("controller calls = %v, want %v", ctrl.snapshot(), want)
	}
	if got := a.Hovered(); !reflect.DeepEqual(got, []string{"i1"}) {
		t.Fatalf("Hovered() = %v, want [i1]", got)
	}
}

func TestArbiter_LeaveIsDebounced(t *testing.T) {
	a, ctrl, clk := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", false)

	clk.Advance(DefaultDebounce - time.Millisecond)
	if want := []string{"i1:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events before debounce = %v, want %v", rec.events, want)
	}

	clk.Advance(time.Millisecond)
	if want := []string{"i1:enter", "i1:leave"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if want := []string{"overlay-a=false", "overlay-a=true"}; !reflect.DeepEqual(ctrl.snapshot(), want) {
		t.Fatalf("controller calls = %v, want %v", ctrl.snapshot(), want)
	}
}

func TestArbiter_CrossingSeamSuppressesLeave(t *testing.T) {
	a, ctrl, clk := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))
	a.Register(rec.capturer("i2", "overlay-b"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", false)
	clk.Advance(5 * time.Millisecond)
	a.UpdateHoverState("i2", true)
	clk.Advance(time.Second)

	if want := []string{"i1:enter", "i2:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if want := []string{"overlay-a=false", "overlay-b=false"}; !reflect.DeepEqual(ctrl.snapshot(), want) {
		t.Fatalf("controller calls = %v, want %v", ctrl.snapshot(), want)
	}
	if clk.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", clk.Pending())
	}
}

func TestArbiter_RepeatedLeaveRestartsTimer(t *testing.T) {
	a, _, clk := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))
	a.Register(rec.capturer("i2", "overlay-b"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i2", true)
	a.UpdateHoverState("i1", false)
	clk.Advance(30 * time.Millisecond)
	a.UpdateHoverState("i2", false)
	clk.Advance(30 * time.Millisecond)
	if len(rec.events) != 2 {
		t.Fatalf("events = %v, want only the two enters", rec.events)
	}

	clk.Advance(20 * time.Millisecond)
	want := []string{"i1:enter", "i2:enter", "i1:leave", "i2:leave"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
}

func TestArbiter_PreventDefaultSuppressesHostCommand(t *testing.T) {
	a, ctrl, clk := newTestArbiter(t)
	var types []EventType
	a.Register(Capturer{
		ID:        "i1",
		SurfaceID: "overlay-a",
		OnEnter:   func(ev *MouseEvent) { types = append(types, ev.Type); ev.PreventDefault() },
		OnLeave:   func(ev *MouseEvent) { types = append(types, ev.Type); ev.PreventDefault() },
	})

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", false)
	clk.Advance(DefaultDebounce)

	if want := []EventType{Enter, Leave}; !reflect.DeepEqual(types, want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	if calls := ctrl.snapshot(); len(calls) != 0 {
		t.Fatalf("controller calls = %v, want none", calls)
	}
}

func TestArbiter_DoDefaultRunsOnce(t *testing.T) {
	a, ctrl, _ := newTestArbiter(t)
	var prevented bool
	a.Register(Capturer{
		ID:        "i1",
		SurfaceID: "overlay-a",
		OnEnter: func(ev *MouseEvent) {
			ev.DoDefault()
			ev.DoDefault()
			ev.PreventDefault()
			prevented = ev.DefaultPrevented()
		},
	})

	a.UpdateHoverState("i1", true)

	if !prevented {
		t.Fatal("DefaultPrevented() = false after PreventDefault")
	}
	if want := []string{"overlay-a=false"}; !reflect.DeepEqual(ctrl.snapshot(), want) {
		t.Fatalf("controller calls = %v, want %v", ctrl.snapshot(), want)
	}
}

func TestArbiter_UnregisterHoveredLeavesImmediately(t *testing.T) {
	a, ctrl, clk := newTestArbiter(t)
	rec := &recorder{}
	_, unregister := a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", true)
	unregister()

	if want := []string{"i1:enter", "i1:leave"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if want := []string{"overlay-a=false", "overlay-a=true"}; !reflect.DeepEqual(ctrl.snapshot(), want) {
		t.Fatalf("controller calls = %v, want %v", ctrl.snapshot(), want)
	}
	if a.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", a.Len())
	}

	unregister()
	clk.Advance(time.Second)
	if len(rec.events) != 2 {
		t.Fatalf("events after second unregister = %v", rec.events)
	}
}

func TestArbiter_UnregisterPendingLeavesImmediately(t *testing.T) {
	a, _, clk := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", false)
	a.Unregister("i1")
	clk.Advance(time.Second)

	if want := []string{"i1:enter", "i1:leave"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
}

func TestArbiter_UnregisterWhileOtherHoveredHasNoLeave(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))
	a.Register(rec.capturer("i2", "overlay-b"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i2", true)
	a.Unregister("i1")

	if want := []string{"i1:enter", "i2:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
}

func TestArbiter_OnlyTransitionsCount(t *testing.T) {
	a, ctrl, _ := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", false)
	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("missing", true)

	if want := []string{"i1:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if len(ctrl.snapshot()) != 1 {
		t.Fatalf("controller calls = %v, want one", ctrl.snapshot())
	}
}

func TestArbiter_HandleMove(t *testing.T) {
	a, ctrl, _ := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.HandleMove("i1")
	a.HandleMove("missing")

	if want := []string{"i1:move"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if len(ctrl.snapshot()) != 0 {
		t.Fatalf("move touched the controller: %v", ctrl.snapshot())
	}
}

func TestArbiter_CloseCancelsPendingLeave(t *testing.T) {
	a, _, clk := newTestArbiter(t)
	rec := &recorder{}
	a.Register(rec.capturer("i1", "overlay-a"))

	a.UpdateHoverState("i1", true)
	a.UpdateHoverState("i1", false)
	a.Close()
	clk.Advance(time.Second)
	a.UpdateHoverState("i1", true)

	if want := []string{"i1:enter"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	if clk.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", clk.Pending())
	}
}

func TestArbiter_GeneratedIDAndReplace(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	rec := &recorder{}

	id, _ := a.Register(Capturer{SurfaceID: "overlay-a"})
	if id == "" {
		t.Fatal("Register returned an empty id")
	}

	_, unregisterOld := a.Register(rec.capturer("i1", "overlay-a"))
	a.Register(rec.capturer("i1", "overlay-b"))
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}

	// The stale unregister func must not remove the replacement.
	unregisterOld()
	if a.Len() != 2 {
		t.Fatalf("Len() after stale unregister = %d, want 2", a.Len())
	}
}

func TestArbiter_ControllerErrorIsLogged(t *testing.T) {
	ctrl := &fakeController{err: errors.New("surface gone")}
	a := New(Config{Controller: ctrl, Clock: clock.Fake(time.Unix(0, 0))})
	defer a.Close()
	a.Register(Capturer{ID: "i1", SurfaceID: "overlay-a"})

	a.UpdateHoverState("i1", true)

	if len(ctrl.snapshot()) != 1 {
		t.Fatalf("controller calls = %v, want one", ctrl.snapshot())
	}
}
