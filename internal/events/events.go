// Package events defines the named-event vocabulary exchanged over a
// client's persistent connection.
package events

import (
	"encoding/json"
	"errors"
)

// ErrSinkClosed is returned by sinks whose underlying transport has gone away.
var ErrSinkClosed = errors.New("events: sink closed")

// Event is one outbound frame: {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Inbound is one decoded client frame. Data is left raw so that opaque
// signaling payloads can be forwarded without re-encoding.
type Inbound struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Sink accepts outbound events for a single connection. Send must not block
// on the remote peer.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error { return f(ev) }

func New(name string, data any) Event {
	return Event{Name: name, Data: data}
}
