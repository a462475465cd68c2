package proto

import (
	"time"

	"github.com/tripdesk/tripdesk-server/internal/store"
)

// FromMessage maps a stored message onto the wire shape.
func FromMessage(m *store.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     string(m.SenderType),
		SenderAdminID:  m.SenderAdminID,
		SenderUserID:   m.SenderUserID,
		SenderName:     m.SenderName,
		SenderEmail:    m.SenderEmail,
		Text:           m.Body,
		ImageURL:       m.ImageURL,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

// FromConversation maps a loaded conversation, including its owner
// profile and message list, onto the wire shape.
func FromConversation(c *store.Conversation) ConversationPayload {
	p := ConversationPayload{
		ID:        c.ID,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt.UnixMilli(),
		UpdatedAt: c.UpdatedAt.UnixMilli(),
		Messages:  make([]MessagePayload, 0, len(c.Messages)),
	}
	if c.Owner != nil {
		p.UserName = c.Owner.Name
		p.UserEmail = c.Owner.Email
	}
	for _, m := range c.Messages {
		p.Messages = append(p.Messages, FromMessage(m))
	}
	return p
}

// ToMessage maps a wire message back into the stored shape.
func ToMessage(p MessagePayload) *store.Message {
	return &store.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderType:     store.SenderType(p.SenderType),
		SenderAdminID:  p.SenderAdminID,
		SenderUserID:   p.SenderUserID,
		Body:           p.Text,
		ImageURL:       p.ImageURL,
		CreatedAt:      time.UnixMilli(p.CreatedAt),
		SenderName:     p.SenderName,
		SenderEmail:    p.SenderEmail,
	}
}

// ToConversation maps a wire conversation back into the stored shape.
func ToConversation(p ConversationPayload) *store.Conversation {
	c := &store.Conversation{
		ID:        p.ID,
		UserID:    p.UserID,
		CreatedAt: time.UnixMilli(p.CreatedAt),
		UpdatedAt: time.UnixMilli(p.UpdatedAt),
		Messages:  make([]*store.Message, 0, len(p.Messages)),
	}
	if p.UserName != "" || p.UserEmail != "" {
		c.Owner = &store.User{ID: p.UserID, Name: p.UserName, Email: p.UserEmail}
	}
	for _, m := range p.Messages {
		c.Messages = append(c.Messages, ToMessage(m))
	}
	return c
}
