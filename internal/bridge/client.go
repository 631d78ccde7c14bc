package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1broseidon/overlayshell/internal/broadcast"
)

// ErrClientClosed is returned by sends on a closed Client.
var ErrClientClosed = errors.New("bridge client closed")

// DialConfig selects the host endpoint. SocketPath wins over Addr.
type DialConfig struct {
	SocketPath string
	// Addr is host:port of a TCP bridge listener.
	Addr      string
	SurfaceID string
	Logger    *slog.Logger
	// OnError receives error messages sent by the host.
	OnError func(Message)
}

// Client is a surface's connection to the host. It is a
// broadcast.Transport and an arbiter.InputController.
type Client struct {
	ws      *websocket.Conn
	surface string
	logger  *slog.Logger
	onError func(Message)

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[int]func(broadcast.Message)
	nextID    int
	closed    bool

	done chan struct{}
}

// Dial connects to the host bridge as cfg.SurfaceID.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	host := cfg.Addr
	if cfg.SocketPath != "" {
		path := cfg.SocketPath
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		host = "overlayshell"
	}
	if host == "" {
		return nil, errors.New("bridge dial: no socket path or address")
	}

	u := url.URL{Scheme: "ws", Host: host, Path: WSPath + url.PathEscape(cfg.SurfaceID)}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial: %w", err)
	}

	c := &Client{
		ws:        ws,
		surface:   cfg.SurfaceID,
		logger:    cfg.Logger,
		onError:   cfg.OnError,
		listeners: make(map[int]func(broadcast.Message)),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Surface returns the id this client connected as.
func (c *Client) Surface() string { return c.surface }

// Send implements broadcast.Transport.
func (c *Client) Send(msg broadcast.Message) error {
	return c.write(fromBroadcast(msg))
}

// Listen implements broadcast.Transport.
func (c *Client) Listen(fn func(broadcast.Message)) (stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SetSurfaceInputTransparent asks the host to change a surface's input
// region. Failures are reported asynchronously through OnError.
func (c *Client) SetSurfaceInputTransparent(id string, transparent bool) error {
	return c.write(Message{Type: TypeSetInputTransparent, Surface: id, Value: &transparent})
}

// BringSurfaceToFront asks the host to raise a surface.
func (c *Client) BringSurfaceToFront(id string) error {
	return c.write(Message{Type: TypeBringToFront, Surface: id})
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.ws.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.closed = true
			c.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("bridge connection lost", "surface", c.surface, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("bridge message unreadable", "surface", c.surface, "error", err)
			continue
		}
		switch msg.Type {
		case TypeBroadcast:
			c.dispatch(msg.broadcast())
		case TypeError:
			c.logger.Warn("bridge request rejected", "surface", c.surface, "error", msg.Error)
			if c.onError != nil {
				c.onError(msg)
			}
		default:
			c.logger.Debug("bridge message ignored", "type", msg.Type)
		}
	}
}

func (c *Client) dispatch(msg broadcast.Message) {
	c.mu.Lock()
	fns := make([]func(broadcast.Message), 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close sends a close frame and waits for the read loop to end.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	// readLoop closes the socket once the close handshake completes.
	if err := c.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
