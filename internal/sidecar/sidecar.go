// Package sidecar lets a renderer that cannot speak the bridge protocol
// drive its surface through JSON lines: commands on stdin, broadcasts and
// hover transitions on stdout. It runs a broadcast.Bus and an
// arbiter.Arbiter on the renderer's behalf.
package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/overlayshell/internal/arbiter"
	"github.com/1broseidon/overlayshell/internal/broadcast"
	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/frame"
)

// Command ops.
const (
	OpRegister       = "register"
	OpUnregister     = "unregister"
	OpHover          = "hover"
	OpMove           = "move"
	OpEmit           = "emit"
	OpSubscribe      = "subscribe"
	OpUnsubscribe    = "unsubscribe"
	OpSetTransparent = "set_transparent"
	OpFront          = "front"
)

// Output event kinds.
const (
	EventBroadcast = "broadcast"
	EventEnter     = "enter"
	EventLeave     = "leave"
	EventMove      = "move"
	EventError     = "error"
)

// Command is one input line.
type Command struct {
	Op     string          `json:"op"`
	ID     string          `json:"id,omitempty"`
	Inside bool            `json:"inside,omitempty"`
	Name   string          `json:"name,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	// Value is the transparency for set_transparent.
	Value *bool `json:"value,omitempty"`
	// Manual keeps the arbiter from touching input transparency for this
	// capturer; the renderer handles enter and leave itself.
	Manual bool `json:"manual,omitempty"`
}

// Output is one output line.
type Output struct {
	Event  string          `json:"event"`
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Controller is the host side of a surface: bridge.Client implements it.
type Controller interface {
	SetSurfaceInputTransparent(id string, transparent bool) error
	BringSurfaceToFront(id string) error
}

// Config configures a Sidecar.
type Config struct {
	SurfaceID    string
	Transport    broadcast.Transport
	Controller   Controller
	Debounce     time.Duration
	MaxLineBytes int
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Sidecar translates between a renderer's JSON lines and the surface
// channel.
type Sidecar struct {
	surface      string
	controller   Controller
	maxLineBytes int
	logger       *slog.Logger

	bus *broadcast.Bus
	arb *arbiter.Arbiter

	outMu sync.Mutex
	enc   *json.Encoder

	mu       sync.Mutex
	capturer map[string]func()
	subs     map[string]func()
}

func New(cfg Config, out io.Writer) *Sidecar {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = frame.DefaultMaxLineBytes
	}
	s := &Sidecar{
		surface:      cfg.SurfaceID,
		controller:   cfg.Controller,
		maxLineBytes: cfg.MaxLineBytes,
		logger:       cfg.Logger,
		enc:          json.NewEncoder(out),
		capturer:     make(map[string]func()),
		subs:         make(map[string]func()),
	}
	s.bus = broadcast.NewBus(broadcast.BusConfig{
		Transport: cfg.Transport,
		Origin:    cfg.SurfaceID,
		Logger:    cfg.Logger,
	})
	s.arb = arbiter.New(arbiter.Config{
		Controller: cfg.Controller,
		Clock:      cfg.Clock,
		Debounce:   cfg.Debounce,
		Logger:     cfg.Logger,
	})
	return s
}

// Run handles commands from in until EOF or ctx is cancelled. After a
// cancel it returns without waiting for in; the reader goroutine keeps
// draining it until EOF.
func (s *Sidecar) Run(ctx context.Context, in io.Reader) error {
	frames := make(chan frame.Frame, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- frame.Pump(ctx, in, frames, s.maxLineBytes)
		close(frames)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			if f.Err != nil {
				s.write(Output{Event: EventError, Error: f.Err.Error()})
				continue
			}
			if err := s.Handle(f.Record); err != nil {
				s.write(Output{Event: EventError, Error: err.Error()})
			}
		}
	}
}

// Handle applies one command.
func (s *Sidecar) Handle(raw json.RawMessage) error {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	switch cmd.Op {
	case OpRegister:
		if cmd.ID == "" {
			return errors.New("register: id is required")
		}
		s.register(cmd.ID, cmd.Manual)
	case OpUnregister:
		s.mu.Lock()
		unreg := s.capturer[cmd.ID]
		delete(s.capturer, cmd.ID)
		s.mu.Unlock()
		if unreg != nil {
			unreg()
		}
	case OpHover:
		s.arb.UpdateHoverState(cmd.ID, cmd.Inside)
	case OpMove:
		s.arb.HandleMove(cmd.ID)
	case OpEmit:
		if cmd.Name == "" {
			return errors.New("emit: name is required")
		}
		var data any
		if len(cmd.Data) > 0 {
			data = cmd.Data
		}
		return s.bus.Emit(cmd.Name, data)
	case OpSubscribe:
		if cmd.Name == "" {
			return errors.New("subscribe: name is required")
		}
		s.subscribe(cmd.Name)
	case OpUnsubscribe:
		s.mu.Lock()
		stop := s.subs[cmd.Name]
		delete(s.subs, cmd.Name)
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	case OpSetTransparent:
		if cmd.Value == nil {
			return errors.New("set_transparent: value is required")
		}
		return s.controller.SetSurfaceInputTransparent(s.surface, *cmd.Value)
	case OpFront:
		return s.controller.BringSurfaceToFront(s.surface)
	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
	return nil
}

func (s *Sidecar) register(id string, manual bool) {
	notify := func(kind string) func(*arbiter.MouseEvent) {
		return func(ev *arbiter.MouseEvent) {
			if manual {
				ev.PreventDefault()
			}
			s.write(Output{Event: kind, ID: ev.InstanceID})
		}
	}
	_, unreg := s.arb.Register(arbiter.Capturer{
		ID:        id,
		SurfaceID: s.surface,
		OnEnter:   notify(EventEnter),
		OnLeave:   notify(EventLeave),
		OnMove:    notify(EventMove),
	})
	s.mu.Lock()
	s.capturer[id] = unreg
	s.mu.Unlock()
}

func (s *Sidecar) subscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[name]; ok {
		return
	}
	s.subs[name] = s.bus.On(name, func(b events.Broadcast) {
		s.write(Output{Event: EventBroadcast, Name: b.Name, Origin: b.Origin, Data: b.Data})
	})
}

func (s *Sidecar) write(o Output) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.enc.Encode(o); err != nil {
		s.logger.Warn("sidecar output failed", "event", o.Event, "error", err)
	}
}

// Close stops the arbiter and detaches from the bus. Registered capturers
// are not sent a leave.
func (s *Sidecar) Close() {
	s.arb.Close()
	s.mu.Lock()
	subs := s.subs
	s.subs = map[string]func(){}
	s.mu.Unlock()
	for _, stop := range subs {
		stop()
	}
	s.bus.Close()
}
