// Package transport abstracts the live bidirectional channel to the
// messaging backend. The sync core consumes the Transport interface only;
// the WebSocket implementation, including its reconnect policy, lives
// behind it.
package transport

import (
	"context"
	"encoding/json"
)

// Inbound event names pushed by the server.
const (
	EventMessageReceived      = "message_received"
	EventUserStartedTyping    = "user_started_typing"
	EventUserStoppedTyping    = "user_stopped_typing"
	EventNotificationReceived = "notification_received"
)

// Outbound invocation names.
const (
	MethodJoinRoom    = "join_room"
	MethodLeaveRoom   = "leave_room"
	MethodStartTyping = "start_typing"
	MethodStopTyping  = "stop_typing"
)

// State is the coarse connection state of a transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Handler consumes the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Transport is an abstract bidirectional event channel. Handlers must be
// registered before Start; reconnection is the implementation's concern and
// surfaces only through State changes.
type Transport interface {
	// Start establishes the channel and begins delivering inbound events.
	Start(ctx context.Context) error

	// Stop tears the channel down. The transport cannot be restarted.
	Stop(ctx context.Context) error

	// Invoke sends a named invocation with a JSON-encodable payload.
	Invoke(ctx context.Context, method string, data any) error

	// On registers a handler for an inbound event name.
	On(event string, h Handler)

	// OnStateChange registers a callback for coarse state transitions.
	OnStateChange(fn func(State))

	// State returns the current coarse state.
	State() State
}

// serverFrame is the envelope for events pushed by the server.
type serverFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// clientFrame is the envelope for invocations sent to the server.
type clientFrame struct {
	Method string `json:"method"`
	Data   any    `json:"data,omitempty"`
}
