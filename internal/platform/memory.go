package platform

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryWindow is the state MemoryBackend keeps per overlay.
type MemoryWindow struct {
	ID          WindowID
	Name        string
	Bounds      Rect
	Passthrough bool
	Visible     bool
	// Raises counts Raise calls.
	Raises int
	// Stack is the position in stacking order, higher is on top.
	Stack int
}

// MemoryBackend is an in-process Backend with no window system. The
// daemon uses it in headless mode and tests use it to observe what the
// surface host asked for.
type MemoryBackend struct {
	mu       sync.Mutex
	displays []Display
	windows  map[WindowID]*MemoryWindow
	nextID   WindowID
	stack    int
	// FailCreate, when set, is returned by CreateOverlay.
	FailCreate error
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns a backend reporting displays.
func NewMemoryBackend(displays ...Display) *MemoryBackend {
	return &MemoryBackend{
		displays: append([]Display(nil), displays...),
		windows:  make(map[WindowID]*MemoryWindow),
	}
}

// SetDisplays replaces the reported displays.
func (b *MemoryBackend) SetDisplays(displays ...Display) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.displays = append([]Display(nil), displays...)
}

// Displays returns the configured displays.
func (b *MemoryBackend) Displays() ([]Display, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Display(nil), b.displays...), nil
}

// CreateOverlay records a new hidden, click-through window.
func (b *MemoryBackend) CreateOverlay(name string, bounds Rect) (WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return 0, b.FailCreate
	}
	b.nextID++
	b.stack++
	b.windows[b.nextID] = &MemoryWindow{
		ID:          b.nextID,
		Name:        name,
		Bounds:      bounds,
		Passthrough: true,
		Stack:       b.stack,
	}
	return b.nextID, nil
}

// DestroyOverlay forgets win.
func (b *MemoryBackend) DestroyOverlay(win WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.windows[win]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, win)
	}
	delete(b.windows, win)
	return nil
}

// SetInputPassthrough records the passthrough flag.
func (b *MemoryBackend) SetInputPassthrough(win WindowID, passthrough bool) error {
	return b.update(win, func(w *MemoryWindow) { w.Passthrough = passthrough })
}

// MoveResize records the new bounds.
func (b *MemoryBackend) MoveResize(win WindowID, bounds Rect) error {
	return b.update(win, func(w *MemoryWindow) { w.Bounds = bounds })
}

// SetVisible records visibility.
func (b *MemoryBackend) SetVisible(win WindowID, visible bool) error {
	return b.update(win, func(w *MemoryWindow) { w.Visible = visible })
}

// Raise puts win on top of the stack.
func (b *MemoryBackend) Raise(win WindowID) error {
	return b.update(win, func(w *MemoryWindow) {
		b.stack++
		w.Stack = b.stack
		w.Raises++
	})
}

func (b *MemoryBackend) update(win WindowID, fn func(*MemoryWindow)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[win]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, win)
	}
	fn(w)
	return nil
}

// Window returns a copy of the state of win.
func (b *MemoryBackend) Window(win WindowID) (MemoryWindow, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[win]
	if !ok {
		return MemoryWindow{}, false
	}
	return *w, true
}

// Windows returns every live window ordered by ID.
func (b *MemoryBackend) Windows() []MemoryWindow {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MemoryWindow, 0, len(b.windows))
	for _, w := range b.windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
