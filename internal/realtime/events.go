package realtime

import "encoding/json"

// Client-to-server event names.
const (
	EventJoinNote        = "join-note"
	EventLeaveNote       = "leave-note"
	EventNoteUpdate      = "note-update"
	EventNoteTitleUpdate = "note-title-update"
	EventCursorUpdate    = "cursor-update"
	EventTyping          = "typing"
)

// Server-to-client event names.
const (
	EventActiveUsers    = "active-users"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
)

// Envelope frames every message on the wire: a named event plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Identity is the authenticated user reference bound to a connection at
// handshake time; immutable for the connection's lifetime.
type Identity struct {
	UserID string
	Email  string
}

// Sink delivers outbound envelopes to one connected client. Delivery is
// best-effort: implementations must not block the hub loop.
type Sink interface {
	Send(envelope Envelope)
}

func mustMarshal(value interface{}) json.RawMessage {
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}
