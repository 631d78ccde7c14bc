// Package broadcast delivers named messages to every live surface,
// including the one that sent them.
package broadcast

import (
	"encoding/json"
	"errors"
)

var (
	// ErrGone is returned by a Sink whose surface no longer exists.
	ErrGone = errors.New("surface gone")
	// ErrQueueFull is returned by a Sink that cannot accept more messages
	// without blocking.
	ErrQueueFull = errors.New("surface queue full")
)

// Message is one broadcast as it travels between surfaces.
type Message struct {
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// NewMessage serializes data into a Message. Data that is already a
// json.RawMessage is used as is.
func NewMessage(name string, data any, origin string) (Message, error) {
	if name == "" {
		return Message{}, errors.New("broadcast name is empty")
	}
	msg := Message{Name: name, Origin: origin}
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		msg.Data = d
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// Transport carries messages between a surface and the host.
type Transport interface {
	// Send asks the host to deliver msg to every surface.
	Send(msg Message) error
	// Listen registers fn for messages delivered to this surface.
	Listen(fn func(Message)) (stop func())
}

// Sink is the host's handle on one surface. Deliver must not block.
type Sink interface {
	Deliver(msg Message) error
}

// Evicter is implemented by sinks backed by a connection. Hub.Detach
// calls Evict so the surface on the other end sees the disconnect.
type Evicter interface {
	Evict()
}
