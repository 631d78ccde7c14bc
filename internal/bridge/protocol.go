// Package bridge connects surface processes to the host over websockets.
// Each connection is one surface: it takes part in broadcasts and may ask
// the host to change input transparency or stacking of a surface.
package bridge

import (
	"encoding/json"

	"github.com/1broseidon/overlayshell/internal/broadcast"
)

// MessageType names a bridge message.
type MessageType string

const (
	TypeBroadcast           MessageType = "broadcast"
	TypeSetInputTransparent MessageType = "set_input_transparent"
	TypeBringToFront        MessageType = "bring_to_front"
	TypeError               MessageType = "error"
)

// Message is the JSON frame exchanged in both directions. Surface defaults
// to the connection's own surface for control messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Surface string          `json:"surface,omitempty"`
	Value   *bool           `json:"value,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func fromBroadcast(m broadcast.Message) Message {
	return Message{Type: TypeBroadcast, Name: m.Name, Data: m.Data, Origin: m.Origin}
}

func (m Message) broadcast() broadcast.Message {
	return broadcast.Message{Name: m.Name, Data: m.Data, Origin: m.Origin}
}

// WSPath is the route prefix; the surface id follows it.
const WSPath = "/ws/"
