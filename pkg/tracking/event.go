package tracking

import (
	"errors"

	"urbanmove/pkg/types"
)

// State is the connection lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateFailed is terminal until the caller calls Connect again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// EventType names what a listener is being told.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventLocation     EventType = "location"
	EventError        EventType = "error"
)

// Event is delivered to every registered listener. Position is set for
// EventLocation, Err for EventError and (when known) EventDisconnected.
type Event struct {
	Type     EventType
	Position *types.PositionEvent
	Err      error
}

// Listener receives client events. It runs on the goroutine that produced the
// event and may call back into the Client, including Disconnect.
type Listener func(Event)

var (
	// ErrTransport wraps socket level failures. Not fatal on its own.
	ErrTransport = errors.New("tracking transport error")

	// ErrProtocol wraps inbound messages that could not be decoded. The
	// connection stays open.
	ErrProtocol = errors.New("tracking protocol error")

	// ErrReconnectExhausted is the terminal error emitted on entering StateFailed.
	ErrReconnectExhausted = errors.New("max reconnection attempts reached")

	// ErrNotConnected is returned by Send when the message was dropped.
	ErrNotConnected = errors.New("tracking client not connected")
)
