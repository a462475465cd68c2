package core

import "github.com/tripdesk/tripdesk-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a conversation's room.
	CommandJoinRoom CommandKind = iota
	// CommandSendMessage persists a message and fans it out to the room.
	CommandSendMessage
)

// Command represents an action requested by a client. TempID is the
// client's correlation id; it is echoed back on the matching ack or
// error so the client can reconcile its optimistic state.
type Command struct {
	Kind   CommandKind
	TempID string

	// ConversationID targets the send, and selects the room for a
	// staff join. User joins ignore any client-supplied ids; the room
	// is derived from the connection's authenticated identity.
	ConversationID string

	Message store.Message
}
