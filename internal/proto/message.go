package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client. TempID
// is the client's correlation id for acks and errors.
type Inbound struct {
	Type   string          `json:"type"`
	TempID string          `json:"tempId,omitempty"`
	Data   json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin = "join"
	InboundTypeSend = "send"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventNewMessage = "new_message"
)

// JoinData requests a room subscription. The user surface sends
// {userId}; the staff surface sends {adminId, conversationId}. The
// server derives the room from the connection identity either way,
// so the ids here are advisory at best.
type JoinData struct {
	UserID         string `json:"userId,omitempty"`
	AdminID        string `json:"adminId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// SendData is a chat message from the client.
type SendData struct {
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	SenderAdminID  string `json:"senderAdminId,omitempty"`
	SenderUserID   string `json:"senderUserId,omitempty"`
	Text           string `json:"text"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type   string `json:"type"`
	Event  string `json:"event,omitempty"`
	TempID string `json:"tempId,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// MessagePayload is one message on the wire.
type MessagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
	SenderAdminID  string `json:"senderAdminId,omitempty"`
	SenderUserID   string `json:"senderUserId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	SenderEmail    string `json:"senderEmail,omitempty"`
	Text           string `json:"text"`
	ImageURL       string `json:"imageUrl,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// ConversationPayload carries a full conversation so both surfaces
// can reconcile from one shape.
type ConversationPayload struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	UserName  string           `json:"userName,omitempty"`
	UserEmail string           `json:"userEmail,omitempty"`
	CreatedAt int64            `json:"createdAt"`
	UpdatedAt int64            `json:"updatedAt"`
	Messages  []MessagePayload `json:"messages"`
}

// EventNewMessageData is the new_message event payload. ClientTempID
// identifies the sender's optimistic entry so the sender's own echo
// replaces it instead of duplicating it.
type EventNewMessageData struct {
	Conversation ConversationPayload `json:"conversation"`
	ClientTempID string              `json:"clientTempId,omitempty"`
}

// AckJoinData confirms a room subscription.
type AckJoinData struct {
	Room string `json:"room"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
