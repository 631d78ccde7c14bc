package broadcast

import (
	"log/slog"

	"github.com/1broseidon/overlayshell/internal/events"
)

// BusConfig configures a Bus.
type BusConfig struct {
	Router    *events.Router
	Transport Transport
	// Origin names the surface this bus belongs to.
	Origin string
	Logger *slog.Logger
}

// Bus is the surface side of the broadcast channel. Messages arriving from
// the host are republished on the local router as events.Broadcast under
// broadcast:<name>.
type Bus struct {
	router    *events.Router
	transport Transport
	origin    string
	logger    *slog.Logger
	stop      func()
}

func NewBus(cfg BusConfig) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Router == nil {
		cfg.Router = events.NewRouter(cfg.Logger)
	}
	b := &Bus{
		router:    cfg.Router,
		transport: cfg.Transport,
		origin:    cfg.Origin,
		logger:    cfg.Logger,
	}
	b.stop = cfg.Transport.Listen(b.receive)
	return b
}

// Router returns the router broadcasts are republished on.
func (b *Bus) Router() *events.Router { return b.router }

// Emit sends data to every live surface, this one included.
func (b *Bus) Emit(name string, data any) error {
	msg, err := NewMessage(name, data, b.origin)
	if err != nil {
		return err
	}
	return b.transport.Send(msg)
}

// On subscribes fn to broadcasts named name.
func (b *Bus) On(name string, fn func(events.Broadcast)) func() {
	return events.OnBroadcast(b.router, name, fn)
}

func (b *Bus) receive(msg Message) {
	b.router.Emit(events.Broadcast{Name: msg.Name, Data: msg.Data, Origin: msg.Origin})
}

// Close stops listening to the transport.
func (b *Bus) Close() {
	b.stop()
}
