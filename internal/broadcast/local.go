package broadcast

import (
	"log/slog"
	"sync"
)

// LocalQueueSize bounds messages waiting for an in-process surface.
const LocalQueueSize = 256

// LocalTransport connects a surface living in the host process to a Hub.
// Deliveries are queued and handed to listeners on a dedicated goroutine,
// so the hub never waits on a listener.
type LocalTransport struct {
	hub    *Hub
	id     string
	logger *slog.Logger
	queue  chan Message
	detach func()

	mu        sync.Mutex
	listeners map[int]func(Message)
	nextID    int
	closed    bool

	done chan struct{}
}

// NewLocalTransport attaches surface id to hub.
func NewLocalTransport(hub *Hub, id string, logger *slog.Logger) *LocalTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &LocalTransport{
		hub:       hub,
		id:        id,
		logger:    logger,
		queue:     make(chan Message, LocalQueueSize),
		listeners: make(map[int]func(Message)),
		done:      make(chan struct{}),
	}
	t.detach = hub.Attach(id, t)
	go t.pump()
	return t
}

// Send broadcasts msg through the hub, stamping this surface as origin.
func (t *LocalTransport) Send(msg Message) error {
	if msg.Origin == "" {
		msg.Origin = t.id
	}
	t.hub.Broadcast(msg)
	return nil
}

func (t *LocalTransport) Listen(fn func(Message)) (stop func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Deliver implements Sink.
func (t *LocalTransport) Deliver(msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrGone
	}
	select {
	case t.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (t *LocalTransport) pump() {
	defer close(t.done)
	for msg := range t.queue {
		t.mu.Lock()
		fns := make([]func(Message), 0, len(t.listeners))
		for i := 0; i < t.nextID; i++ {
			if fn, ok := t.listeners[i]; ok {
				fns = append(fns, fn)
			}
		}
		t.mu.Unlock()
		for _, fn := range fns {
			fn(msg)
		}
	}
}

// Close detaches the surface and waits for queued deliveries to finish.
func (t *LocalTransport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	t.detach()
	<-t.done
}
