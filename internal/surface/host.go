// Package surface is the host side of the cross-surface control channel.
// It owns the overlay windows, answers path queries and relays broadcasts
// between the main surface and every overlay.
package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/overlayshell/internal/broadcast"
	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/platform"
)

var (
	// ErrUnknownScreen is returned by CreateSurface for a display id the
	// backend does not report.
	ErrUnknownScreen = errors.New("unknown screen")
	// ErrInvalidID is returned for an empty surface id or one containing '/'.
	ErrInvalidID = errors.New("invalid surface id")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("surface host is closed")
)

const (
	// MainID is the permanent main surface.
	MainID = "main"

	// DefaultRaiseSettle is the delay before the second raise in
	// BringSurfaceToFront.
	DefaultRaiseSettle = 50 * time.Millisecond

	BroadcastCreated   = "surface.created"
	BroadcastDestroyed = "surface.destroyed"
)

// Kind tells the main surface from overlays.
type Kind string

const (
	KindMain    Kind = "main"
	KindOverlay Kind = "overlay"
)

// Info describes one surface.
type Info struct {
	ID               string        `json:"id"`
	Kind             Kind          `json:"kind"`
	ScreenID         int           `json:"screen_id"`
	Path             string        `json:"path,omitempty"`
	Bounds           platform.Rect `json:"bounds"`
	Visible          bool          `json:"visible"`
	InputTransparent bool          `json:"input_transparent"`
	Connected        bool          `json:"connected"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Align changes an overlay's geometry or visibility. Size is applied only
// when both Width and Height are set, position only when both X and Y are.
type Align struct {
	X       *int  `json:"x,omitempty"`
	Y       *int  `json:"y,omitempty"`
	Width   *int  `json:"width,omitempty"`
	Height  *int  `json:"height,omitempty"`
	Visible *bool `json:"visible,omitempty"`
}

// Config configures a Host.
type Config struct {
	Backend platform.Backend
	Hub     *broadcast.Hub
	// Router receives broadcasts addressed to the main surface; topics in
	// Forward are relayed from it to every surface.
	Router   *events.Router
	Forward  []events.Topic
	Paths    Paths
	Launcher Launcher
	Clock    clock.Clock
	// RaiseSettle defaults to DefaultRaiseSettle.
	RaiseSettle time.Duration
	Logger      *slog.Logger
}

// DefaultForward is the set of topics relayed to surfaces when
// Config.Forward is nil.
func DefaultForward() []events.Topic {
	return append(append([]events.Topic(nil), events.NativeTopics...), events.TopicHelperError, events.TopicHelperExit)
}

type surface struct {
	info   Info
	window platform.WindowID
	stop   func()
	settle *clock.Timer
}

// Host implements the control channel against a platform.Backend.
type Host struct {
	backend  platform.Backend
	hub      *broadcast.Hub
	router   *events.Router
	paths    Paths
	launcher Launcher
	clock    clock.Clock
	settle   time.Duration
	logger   *slog.Logger

	main *broadcast.LocalTransport
	bus  *broadcast.Bus

	mu       sync.Mutex
	surfaces map[string]*surface
	hidden   bool
	closed   bool
	unsubs   []func()
}

// New returns a Host with the main surface attached to the hub.
func New(cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backend == nil {
		cfg.Backend = platform.NewMemoryBackend()
	}
	if cfg.Hub == nil {
		cfg.Hub = broadcast.NewHub(cfg.Logger)
	}
	if cfg.Router == nil {
		cfg.Router = events.NewRouter(cfg.Logger)
	}
	if cfg.Forward == nil {
		cfg.Forward = DefaultForward()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.RaiseSettle <= 0 {
		cfg.RaiseSettle = DefaultRaiseSettle
	}

	h := &Host{
		backend:  cfg.Backend,
		hub:      cfg.Hub,
		router:   cfg.Router,
		paths:    cfg.Paths,
		launcher: cfg.Launcher,
		clock:    cfg.Clock,
		settle:   cfg.RaiseSettle,
		logger:   cfg.Logger,
		surfaces: make(map[string]*surface),
	}
	h.main = broadcast.NewLocalTransport(h.hub, MainID, h.logger)
	h.bus = broadcast.NewBus(broadcast.BusConfig{
		Router:    h.router,
		Transport: h.main,
		Origin:    MainID,
		Logger:    h.logger,
	})
	h.surfaces[MainID] = &surface{info: Info{
		ID:        MainID,
		Kind:      KindMain,
		ScreenID:  -1,
		Visible:   true,
		CreatedAt: h.clock.Now(),
	}}
	for _, topic := range cfg.Forward {
		h.unsubs = append(h.unsubs, h.router.Subscribe(topic, h.forward))
	}
	return h
}

// Bus returns the main surface's broadcast bus.
func (h *Host) Bus() *broadcast.Bus { return h.bus }

// Hub returns the hub every surface is attached to.
func (h *Host) Hub() *broadcast.Hub { return h.hub }

// GetPath returns a well-known path by name.
func (h *Host) GetPath(name string) (string, error) {
	return h.paths.Get(name)
}

// Displays returns the displays overlays can be created on.
func (h *Host) Displays() ([]platform.Display, error) {
	return h.backend.Displays()
}

// SendBroadcast emits name to every live surface, the main one included.
func (h *Host) SendBroadcast(name string, data any) error {
	return h.bus.Emit(name, data)
}

// OnBroadcast subscribes fn to broadcasts named name on the main surface.
func (h *Host) OnBroadcast(name string, fn func(events.Broadcast)) func() {
	return h.bus.On(name, fn)
}

func (h *Host) forward(env events.Envelope) {
	msg, err := broadcast.NewMessage(env.Topic.String(), env.Payload, MainID)
	if err != nil {
		h.logger.Warn("forward event failed", "topic", env.Topic, "error", err)
		return
	}
	h.hub.Broadcast(msg)
}

// CreateSurface creates overlay id covering display screenID and starts
// its renderer at path. An existing surface with the same id is destroyed
// first; a bridge connection still attached under id is closed and the
// renderer has to reconnect.
func (h *Host) CreateSurface(screenID int, id, path string) error {
	if id == "" || id == MainID || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	displays, err := h.backend.Displays()
	if err != nil {
		return fmt.Errorf("list displays: %w", err)
	}
	var display *platform.Display
	for i := range displays {
		if displays[i].ID == screenID {
			display = &displays[i]
			break
		}
	}
	if display == nil {
		return fmt.Errorf("%w: %d", ErrUnknownScreen, screenID)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	old := h.removeLocked(id)
	h.mu.Unlock()
	if old != nil {
		h.finishDestroy(old)
	}

	win, err := h.backend.CreateOverlay(id, display.Bounds)
	if err != nil {
		return fmt.Errorf("create overlay %s: %w", id, err)
	}

	s := &surface{
		window: win,
		info: Info{
			ID:               id,
			Kind:             KindOverlay,
			ScreenID:         screenID,
			Path:             strings.Trim(path, "/"),
			Bounds:           display.Bounds,
			Visible:          true,
			InputTransparent: true,
			CreatedAt:        h.clock.Now(),
		},
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = h.backend.DestroyOverlay(win)
		return ErrClosed
	}
	h.surfaces[id] = s
	hidden := h.hidden
	h.mu.Unlock()

	if err := h.backend.SetVisible(win, !hidden); err != nil {
		h.logger.Warn("show overlay failed", "surface", id, "error", err)
	}

	if h.launcher != nil {
		stop, err := h.launcher.Launch(s.info)
		if err != nil {
			h.logger.Error("renderer launch failed", "surface", id, "error", err)
		} else {
			h.mu.Lock()
			if h.surfaces[id] == s {
				s.stop = stop
				stop = nil
			}
			h.mu.Unlock()
			if stop != nil {
				stop()
			}
		}
	}

	h.logger.Info("surface created", "surface", id, "screen", screenID, "path", s.info.Path)
	h.announce(BroadcastCreated, s.info)
	return nil
}

// DestroySurface destroys overlay id. Unknown ids and the main surface
// are ignored.
func (h *Host) DestroySurface(id string) error {
	h.mu.Lock()
	s := h.removeLocked(id)
	h.mu.Unlock()
	if s == nil {
		return nil
	}
	return h.finishDestroy(s)
}

// DestroyAllSurfaces destroys every overlay.
func (h *Host) DestroyAllSurfaces() error {
	h.mu.Lock()
	var victims []*surface
	for id := range h.surfaces {
		if s := h.removeLocked(id); s != nil {
			victims = append(victims, s)
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, s := range victims {
		if err := h.finishDestroy(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) removeLocked(id string) *surface {
	s, ok := h.surfaces[id]
	if !ok || s.info.Kind == KindMain {
		return nil
	}
	delete(h.surfaces, id)
	s.settle.Stop()
	return s
}

func (h *Host) finishDestroy(s *surface) error {
	h.hub.Detach(s.info.ID)
	if s.stop != nil {
		s.stop()
	}
	err := h.backend.DestroyOverlay(s.window)
	if errors.Is(err, platform.ErrUnknownWindow) {
		err = nil
	}
	h.logger.Info("surface destroyed", "surface", s.info.ID)
	h.announce(BroadcastDestroyed, s.info)
	return err
}

func (h *Host) lookup(id string) (*surface, platform.WindowID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[id]
	if !ok || s.info.Kind == KindMain {
		return nil, 0, false
	}
	return s, s.window, true
}

// SetSurfaceInputTransparent makes overlay id let pointer input through
// or accept it. A missing or destroyed surface is not an error.
func (h *Host) SetSurfaceInputTransparent(id string, transparent bool) error {
	s, win, ok := h.lookup(id)
	if !ok {
		return nil
	}
	err := h.backend.SetInputPassthrough(win, transparent)
	if errors.Is(err, platform.ErrUnknownWindow) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("set input transparency of %s: %w", id, err)
	}
	h.mu.Lock()
	s.info.InputTransparent = transparent
	h.mu.Unlock()
	h.logger.Debug("surface input transparency set", "surface", id, "transparent", transparent)
	return nil
}

// AlignSurface moves, resizes, shows or hides overlay id.
func (h *Host) AlignSurface(id string, a Align) error {
	s, win, ok := h.lookup(id)
	if !ok {
		return nil
	}

	h.mu.Lock()
	bounds := s.info.Bounds
	hidden := h.hidden
	h.mu.Unlock()

	moved := false
	if a.Width != nil && a.Height != nil {
		bounds.Width, bounds.Height = *a.Width, *a.Height
		moved = true
	}
	if a.X != nil && a.Y != nil {
		bounds.X, bounds.Y = *a.X, *a.Y
		moved = true
	}
	if moved {
		if err := h.backend.MoveResize(win, bounds); err != nil && !errors.Is(err, platform.ErrUnknownWindow) {
			return fmt.Errorf("align %s: %w", id, err)
		}
	}
	if a.Visible != nil && !hidden {
		if err := h.backend.SetVisible(win, *a.Visible); err != nil && !errors.Is(err, platform.ErrUnknownWindow) {
			return fmt.Errorf("align %s: %w", id, err)
		}
	}

	h.mu.Lock()
	s.info.Bounds = bounds
	if a.Visible != nil {
		s.info.Visible = *a.Visible
	}
	h.mu.Unlock()
	return nil
}

// BringSurfaceToFront raises overlay id, then raises it again once
// RaiseSettle has passed so it ends up on top after a window manager
// restacks on focus.
func (h *Host) BringSurfaceToFront(id string) error {
	s, win, ok := h.lookup(id)
	if !ok {
		return nil
	}
	if err := h.backend.Raise(win); err != nil {
		if errors.Is(err, platform.ErrUnknownWindow) {
			return nil
		}
		return fmt.Errorf("raise %s: %w", id, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surfaces[id] != s {
		return nil
	}
	s.settle.Stop()
	s.settle = h.clock.AfterFunc(h.settle, func() {
		h.mu.Lock()
		current := h.surfaces[id] == s
		h.mu.Unlock()
		if !current {
			return
		}
		if err := h.backend.Raise(win); err != nil && !errors.Is(err, platform.ErrUnknownWindow) {
			h.logger.Warn("second raise failed", "surface", id, "error", err)
		}
	})
	return nil
}

// SetOverlaysVisible hides or shows every overlay without destroying
// them. Overlays hidden through AlignSurface stay hidden.
func (h *Host) SetOverlaysVisible(visible bool) {
	h.mu.Lock()
	h.hidden = !visible
	type target struct {
		id  string
		win platform.WindowID
		on  bool
	}
	var targets []target
	for id, s := range h.surfaces {
		if s.info.Kind == KindOverlay {
			targets = append(targets, target{id, s.window, visible && s.info.Visible})
		}
	}
	h.mu.Unlock()

	for _, t := range targets {
		if err := h.backend.SetVisible(t.win, t.on); err != nil && !errors.Is(err, platform.ErrUnknownWindow) {
			h.logger.Warn("toggle overlay failed", "surface", t.id, "error", err)
		}
	}
}

// ToggleOverlays flips overlay visibility and returns the new state.
func (h *Host) ToggleOverlays() bool {
	h.mu.Lock()
	visible := h.hidden
	h.mu.Unlock()
	h.SetOverlaysVisible(visible)
	return visible
}

// OverlaysVisible reports whether overlays are currently shown.
func (h *Host) OverlaysVisible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.hidden
}

// Get returns surface id.
func (h *Host) Get(id string) (Info, bool) {
	h.mu.Lock()
	s, ok := h.surfaces[id]
	var info Info
	if ok {
		info = s.info
	}
	h.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	info.Connected = h.connected(id)
	return info, true
}

// Surfaces lists every surface, main first, then overlays by id.
func (h *Host) Surfaces() []Info {
	h.mu.Lock()
	out := make([]Info, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		out = append(out, s.info)
	}
	h.mu.Unlock()

	attached := make(map[string]bool)
	for _, id := range h.hub.Surfaces() {
		attached[id] = true
	}
	for i := range out {
		out[i].Connected = attached[out[i].ID]
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Kind == KindMain) != (out[j].Kind == KindMain) {
			return out[i].Kind == KindMain
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (h *Host) connected(id string) bool {
	for _, s := range h.hub.Surfaces() {
		if s == id {
			return true
		}
	}
	return false
}

func (h *Host) announce(name string, info Info) {
	if err := h.bus.Emit(name, info); err != nil {
		h.logger.Warn("announce surface change failed", "name", name, "error", err)
	}
}

// Close destroys every overlay and detaches the main surface.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	err := h.DestroyAllSurfaces()
	h.bus.Close()
	h.main.Close()
	return err
}
