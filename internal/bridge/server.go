package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1broseidon/overlayshell/internal/broadcast"
)

const (
	DefaultSendQueue = 256

	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
)

// Controller applies surface control requests on the host.
type Controller interface {
	SetSurfaceInputTransparent(id string, transparent bool) error
	BringSurfaceToFront(id string) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Hub        *broadcast.Hub
	Controller Controller
	Logger     *slog.Logger
	SendQueue  int
}

// Server accepts surface connections and attaches each to the hub.
type Server struct {
	hub        *broadcast.Hub
	controller Controller
	logger     *slog.Logger
	sendQueue  int
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	conns   map[*conn]struct{}
	servers []*http.Server
	closed  bool
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	return &Server{
		hub:        cfg.Hub,
		controller: cfg.Controller,
		logger:     cfg.Logger,
		sendQueue:  cfg.SendQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Surfaces are local processes; the socket's permissions are
			// the access check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// Handler returns the HTTP handler serving WSPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, s.HandleWebSocket)
	return mux
}

// HandleWebSocket upgrades /ws/<surface-id>. An empty id gets a generated one.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, WSPath), "/")
	if strings.Contains(id, "/") {
		http.Error(w, "invalid surface id", http.StatusBadRequest)
		return
	}
	if id == "" {
		id = "surface-" + uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("bridge upgrade failed", "surface", id, "error", err)
		return
	}

	c := &conn{
		server:  s,
		ws:      ws,
		surface: id,
		send:    make(chan []byte, s.sendQueue),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	c.detach = s.hub.Attach(id, c)
	s.logger.Info("surface connected", "surface", id)

	go c.writePump()
	go c.readPump()
}

// ListenUnix listens on a unix socket at path, replacing a stale socket.
func ListenUnix(path string) (net.Listener, error) {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on bridge socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		l.Close()
		return nil, fmt.Errorf("set bridge socket permissions: %w", err)
	}
	return l, nil
}

// Serve serves surface connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.servers = append(s.servers, srv)
	s.mu.Unlock()

	s.logger.Info("bridge listening", "addr", l.Addr().String())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Connections returns the number of connected surfaces.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown stops the listeners and closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	servers := s.servers
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(ctx))
	}
	for _, c := range conns {
		_ = c.ws.Close()
	}
	return errors.Join(errs...)
}

func (s *Server) remove(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

type conn struct {
	server  *Server
	ws      *websocket.Conn
	surface string
	detach  func()

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Deliver implements broadcast.Sink.
func (c *conn) Deliver(msg broadcast.Message) error {
	data, err := json.Marshal(fromBroadcast(msg))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return broadcast.ErrGone
	}
	select {
	case c.send <- data:
		return nil
	default:
		return broadcast.ErrQueueFull
	}
}

func (c *conn) sendError(format string, args ...any) {
	data, err := json.Marshal(Message{Type: TypeError, Surface: c.surface, Error: fmt.Sprintf(format, args...)})
	if err != nil {
		return
	}
	_ = c.enqueue(data)
}

// Evict implements broadcast.Evicter. The write pump sends a close frame
// once the queue drains.
func (c *conn) Evict() {
	c.server.logger.Info("surface evicted", "surface", c.surface)
	c.close()
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.detach()
	c.server.remove(c)
	c.server.logger.Info("surface disconnected", "surface", c.surface)
}

func (c *conn) readPump() {
	defer func() {
		c.close()
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("bridge read failed", "surface", c.surface, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *conn) handle(msg Message) {
	target := msg.Surface
	if target == "" {
		target = c.surface
	}

	switch msg.Type {
	case TypeBroadcast:
		if msg.Name == "" {
			c.sendError("broadcast without name")
			return
		}
		if msg.Origin == "" {
			msg.Origin = c.surface
		}
		c.server.hub.Broadcast(msg.broadcast())
	case TypeSetInputTransparent:
		if msg.Value == nil {
			c.sendError("set_input_transparent without value")
			return
		}
		if err := c.server.controller.SetSurfaceInputTransparent(target, *msg.Value); err != nil {
			c.sendError("set_input_transparent %s: %v", target, err)
		}
	case TypeBringToFront:
		if err := c.server.controller.BringSurfaceToFront(target); err != nil {
			c.sendError("bring_to_front %s: %v", target, err)
		}
	default:
		c.sendError("unknown message type %q", msg.Type)
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()

	for data := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.server.logger.Debug("bridge write failed", "surface", c.surface, "error", err)
			c.close()
			return
		}
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
