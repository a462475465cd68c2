package core

import "github.com/tripdesk/tripdesk-server/internal/store"

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventNewMessage notifies room subscribers about a new message,
	// carrying the updated conversation with its re-sorted message list.
	EventNewMessage EventKind = iota
	// EventAck confirms a client command identified by its temp id.
	EventAck
	// EventError reports a failed command to the originating client.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	Room string

	// TempID correlates acks and errors with the originating command.
	TempID string
	// ClientTempID travels inside a new-message broadcast so the
	// sender can replace its optimistic entry instead of duplicating it.
	ClientTempID string

	Conversation *store.Conversation // for EventNewMessage
	Message      *store.Message      // for EventAck on a send
	Error        *CoreError          // for EventError
}
