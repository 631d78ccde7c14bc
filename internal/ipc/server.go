package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/overlayshell/internal/runtimepath"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// DefaultCommandTimeout bounds commands that run a helper once.
const DefaultCommandTimeout = 15 * time.Second

// Controller is the daemon as seen by the IPC server.
type Controller interface {
	Status() StatusData
	Helpers() []supervisor.HelperInfo
	StartHelper(kind, mode string) error
	StopHelper(kind, mode string) error
	RestartHelpers() error
	Surfaces() []surface.Info
	CreateSurface(screenID int, id, path string) (surface.Info, error)
	DestroySurface(id string) error
	SetSurfaceInputTransparent(id string, transparent bool) error
	BringSurfaceToFront(id string) error
	ToggleOverlays() bool
	SendBroadcast(name string, data json.RawMessage) error
	Media() MediaData
	MediaCommand(ctx context.Context, command string) error
	Taskbar() TaskbarData
	TaskbarCommand(ctx context.Context, req TaskbarCommandPayload) (TaskbarResult, error)
	Reload() error
}

// ServerConfig configures a Server. SocketPath defaults to
// runtimepath.SocketPath.
type ServerConfig struct {
	SocketPath     string
	Controller     Controller
	Logger         *slog.Logger
	CommandTimeout time.Duration
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	ctl        Controller
	logger     *slog.Logger
	timeout    time.Duration

	listener     net.Listener
	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("ipc server needs a controller")
	}
	if cfg.SocketPath == "" {
		path, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
		cfg.SocketPath = path
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Server{
		socketPath: cfg.SocketPath,
		ctl:        cfg.Controller,
		logger:     cfg.Logger,
		timeout:    cfg.CommandTimeout,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	// Remove a stale socket left by a previous daemon.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.shutdownMu.Lock()
	s.listener = listener
	s.shutdownMu.Unlock()

	s.logger.Info("ipc server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			done := s.shuttingDown
			s.shutdownMu.Unlock()
			if done || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("ipc accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection serves one request on conn.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.timeout + 5*time.Second))

	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("ipc read failed", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.write(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	s.write(conn, s.handleCommand(req))
}

func (s *Server) write(conn net.Conn, resp *Response) {
	data, err := resp.Marshal()
	if err != nil {
		s.logger.Error("marshal ipc response failed", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("ipc write failed", "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	s.logger.Debug("ipc command", "command", req.Command)

	switch req.Command {
	case CommandGetStatus:
		return ok(s.ctl.Status())
	case CommandListHelpers:
		return ok(HelpersData{Helpers: s.ctl.Helpers()})
	case CommandStartHelper:
		return withPayload(req.Payload, func(p HelperPayload) *Response {
			if p.Kind == "" {
				return NewErrorResponse("kind is required")
			}
			return result(nil, s.ctl.StartHelper(p.Kind, p.Mode))
		})
	case CommandStopHelper:
		return withPayload(req.Payload, func(p HelperPayload) *Response {
			if p.Kind == "" {
				return NewErrorResponse("kind is required")
			}
			return result(nil, s.ctl.StopHelper(p.Kind, p.Mode))
		})
	case CommandRestartHelpers:
		return result(nil, s.ctl.RestartHelpers())
	case CommandListSurfaces:
		return ok(SurfacesData{Surfaces: s.ctl.Surfaces()})
	case CommandCreateSurface:
		return withPayload(req.Payload, func(p CreateSurfacePayload) *Response {
			info, err := s.ctl.CreateSurface(p.ScreenID, p.ID, p.Path)
			return result(info, err)
		})
	case CommandDestroySurface:
		return withPayload(req.Payload, func(p SurfacePayload) *Response {
			return result(nil, s.ctl.DestroySurface(p.ID))
		})
	case CommandSetInputTransparent:
		return withPayload(req.Payload, func(p SetInputTransparentPayload) *Response {
			return result(nil, s.ctl.SetSurfaceInputTransparent(p.ID, p.Transparent))
		})
	case CommandBringToFront:
		return withPayload(req.Payload, func(p SurfacePayload) *Response {
			return result(nil, s.ctl.BringSurfaceToFront(p.ID))
		})
	case CommandToggleOverlays:
		return ok(OverlaysData{Visible: s.ctl.ToggleOverlays()})
	case CommandBroadcast:
		return withPayload(req.Payload, func(p BroadcastPayload) *Response {
			if p.Name == "" {
				return NewErrorResponse("name is required")
			}
			return result(nil, s.ctl.SendBroadcast(p.Name, p.Data))
		})
	case CommandGetMedia:
		return ok(s.ctl.Media())
	case CommandMediaCommand:
		return withPayload(req.Payload, func(p MediaCommandPayload) *Response {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			return result(nil, s.ctl.MediaCommand(ctx, p.Command))
		})
	case CommandGetTaskbar:
		return ok(s.ctl.Taskbar())
	case CommandTaskbarCommand:
		return withPayload(req.Payload, func(p TaskbarCommandPayload) *Response {
			if p.Action == "" {
				return NewErrorResponse("action is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			res, err := s.ctl.TaskbarCommand(ctx, p)
			return result(res, err)
		})
	case CommandReload:
		s.logger.Info("reload requested over ipc")
		return result(nil, s.ctl.Reload())
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func withPayload[T any](raw json.RawMessage, fn func(T) *Response) *Response {
	var p T
	if len(raw) == 0 {
		return NewErrorResponse("payload is required")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid payload: %v", err))
	}
	return fn(p)
}

func ok(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func result(data any, err error) *Response {
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return ok(data)
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	listener := s.listener
	s.shutdownMu.Unlock()

	if listener != nil {
		listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}
