// Package arbiter decides which of several overlapping overlay surfaces
// accepts pointer input at any moment.
//
// Each overlay UI registers capturer regions and reports pointer
// enter/leave for them. An enter makes the owning surface accept input
// straight away. A leave is debounced by one shared timer: it only takes
// effect if no capturer is hovered when the timer fires, so crossing the
// seam between two surfaces never makes both click-through at once.
package arbiter

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/overlayshell/internal/clock"
)

// DefaultDebounce is the leave delay.
const DefaultDebounce = 50 * time.Millisecond

// InputController toggles whether a surface lets pointer input through.
// surface.Host and bridge.Client both implement it.
type InputController interface {
	SetSurfaceInputTransparent(id string, transparent bool) error
}

// EventType is the kind of a MouseEvent.
type EventType string

const (
	Enter EventType = "enter"
	Leave EventType = "leave"
	Move  EventType = "move"
)

// MouseEvent is passed to capturer callbacks.
//
// For enter the default action makes the surface accept input; for leave
// it makes the surface click-through again. Move has no default action.
type MouseEvent struct {
	Type       EventType
	InstanceID string
	SurfaceID  string

	prevented bool
	ran       bool
	action    func()
}

// PreventDefault suppresses the default action once the callback returns.
func (e *MouseEvent) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *MouseEvent) DefaultPrevented() bool { return e.prevented }

// DoDefault runs the default action now. It runs at most once per event,
// whether triggered here or after the callback returns.
func (e *MouseEvent) DoDefault() {
	if e.ran {
		return
	}
	e.ran = true
	if e.action != nil {
		e.action()
	}
}

// Capturer is one pointer-sensitive region of a surface.
type Capturer struct {
	// ID is generated when empty.
	ID        string
	SurfaceID string

	OnEnter func(*MouseEvent)
	OnLeave func(*MouseEvent)
	OnMove  func(*MouseEvent)
}

// Config configures an Arbiter.
type Config struct {
	Controller InputController
	Clock      clock.Clock
	Debounce   time.Duration
	Logger     *slog.Logger
}

type instance struct {
	Capturer
	hovered bool
}

// Arbiter tracks registered capturers and drives input transparency.
// Callbacks run on the caller's goroutine for enter, unregister and move,
// and on the timer goroutine for debounced leaves; never with the arbiter
// lock held.
type Arbiter struct {
	controller InputController
	clock      clock.Clock
	debounce   time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	instances map[string]*instance
	// pending lists capturers whose leave waits on timer.
	pending []string
	timer   *clock.Timer
	// gen invalidates a timer callback that lost the race with Stop.
	gen    uint64
	closed bool
}

// New returns an Arbiter.
func New(cfg Config) *Arbiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Arbiter{
		controller: cfg.Controller,
		clock:      cfg.Clock,
		debounce:   cfg.Debounce,
		logger:     cfg.Logger,
		instances:  make(map[string]*instance),
	}
}

// Register adds c and returns its id and a func that unregisters it.
// Registering an id that is already present replaces the old capturer.
func (a *Arbiter) Register(c Capturer) (string, func()) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	a.Unregister(c.ID)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return c.ID, func() {}
	}
	inst := &instance{Capturer: c}
	a.instances[c.ID] = inst
	a.mu.Unlock()

	var once sync.Once
	return c.ID, func() {
		once.Do(func() { a.unregister(c.ID, inst) })
	}
}

// Unregister removes the capturer with id. If it was hovered, or its leave
// was still pending, the leave happens immediately.
func (a *Arbiter) Unregister(id string) {
	a.unregister(id, nil)
}

func (a *Arbiter) unregister(id string, want *instance) {
	a.mu.Lock()
	inst, ok := a.instances[id]
	if !ok || (want != nil && inst != want) {
		a.mu.Unlock()
		return
	}
	delete(a.instances, id)
	wasPending := a.dropPending(id)
	leave := (inst.hovered || wasPending) && !a.anyHoveredLocked()
	a.mu.Unlock()

	if leave {
		a.leave(inst.Capturer)
	}
}

// UpdateHoverState records whether the pointer is inside capturer id.
// Only transitions have an effect; unknown ids are ignored.
func (a *Arbiter) UpdateHoverState(id string, inside bool) {
	a.mu.Lock()
	inst, ok := a.instances[id]
	if !ok || a.closed || inst.hovered == inside {
		a.mu.Unlock()
		return
	}
	inst.hovered = inside

	if inside {
		a.cancelLocked()
		a.mu.Unlock()
		a.enter(inst.Capturer)
		return
	}

	a.dropPending(id)
	a.pending = append(a.pending, id)
	a.timer.Stop()
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.debounce, func() { a.fire(gen) })
	a.mu.Unlock()
}

// HandleMove forwards a pointer move inside capturer id to its OnMove.
func (a *Arbiter) HandleMove(id string) {
	a.mu.Lock()
	inst, ok := a.instances[id]
	closed := a.closed
	a.mu.Unlock()
	if !ok || closed || inst.OnMove == nil {
		return
	}
	inst.OnMove(&MouseEvent{Type: Move, InstanceID: inst.ID, SurfaceID: inst.SurfaceID})
}

// Hovered returns the ids of hovered capturers, sorted.
func (a *Arbiter) Hovered() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for id, inst := range a.instances {
		if inst.hovered {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered capturers.
func (a *Arbiter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

// Close cancels any pending leave. Later hover updates are ignored.
func (a *Arbiter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.cancelLocked()
}

func (a *Arbiter) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.closed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	if a.anyHoveredLocked() {
		a.pending = nil
		a.mu.Unlock()
		return
	}
	var leavers []Capturer
	for _, id := range a.pending {
		if inst, ok := a.instances[id]; ok {
			leavers = append(leavers, inst.Capturer)
		}
	}
	a.pending = nil
	a.mu.Unlock()

	for _, c := range leavers {
		a.leave(c)
	}
}

func (a *Arbiter) cancelLocked() {
	a.timer.Stop()
	a.timer = nil
	a.gen++
	a.pending = nil
}

func (a *Arbiter) dropPending(id string) bool {
	for i, p := range a.pending {
		if p == id {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Arbiter) anyHoveredLocked() bool {
	for _, inst := range a.instances {
		if inst.hovered {
			return true
		}
	}
	return false
}

func (a *Arbiter) enter(c Capturer) {
	a.logger.Debug("capturer entered", "capturer", c.ID, "surface", c.SurfaceID)
	a.dispatch(c, Enter, c.OnEnter, false)
}

func (a *Arbiter) leave(c Capturer) {
	a.logger.Debug("capturer left", "capturer", c.ID, "surface", c.SurfaceID)
	a.dispatch(c, Leave, c.OnLeave, true)
}

func (a *Arbiter) dispatch(c Capturer, typ EventType, fn func(*MouseEvent), transparent bool) {
	ev := &MouseEvent{
		Type:       typ,
		InstanceID: c.ID,
		SurfaceID:  c.SurfaceID,
		action:     func() { a.setTransparent(c.SurfaceID, transparent) },
	}
	if fn != nil {
		fn(ev)
	}
	if !ev.prevented {
		ev.DoDefault()
	}
}

func (a *Arbiter) setTransparent(surfaceID string, transparent bool) {
	if a.controller == nil || surfaceID == "" {
		return
	}
	if err := a.controller.SetSurfaceInputTransparent(surfaceID, transparent); err != nil {
		a.logger.Warn("set input transparency failed", "surface", surfaceID, "transparent", transparent, "error", err)
	}
}
