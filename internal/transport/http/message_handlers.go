package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

// MessageHandlers provides HTTP handlers for the message log.
type MessageHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// SendMessageRequest represents the send message request body. The
// sender identity comes from the token, never from the body.
type SendMessageRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
}

// Send appends a message to the conversation in the path. Users may
// only write into their own conversation.
// POST /api/messages/:conversationId
func (h *MessageHandlers) Send(c *gin.Context) {
	subjectID, isAdmin, ok := subjectFromContext(c)
	if !ok {
		h.log.Error().Msg("subject not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conversationID := c.Param("conversationId")
	conv, err := h.store.GetConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !isAdmin && conv.UserID != subjectID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your conversation"})
		return
	}

	msg := store.Message{
		ConversationID: conversationID,
		Body:           req.Text,
		ImageURL:       req.ImageURL,
	}
	if isAdmin {
		msg.SenderType = store.SenderAdmin
		msg.SenderAdminID = subjectID
	} else {
		msg.SenderType = store.SenderUser
		msg.SenderUserID = subjectID
	}

	if err := h.store.SaveMessage(c.Request.Context(), &msg); err != nil {
		switch {
		case errors.Is(err, store.ErrValidation):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message must carry text or an image"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		default:
			h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to save message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, proto.FromMessage(&msg))
}

// List returns all messages of a conversation in creation order.
// GET /api/messages/:conversationId
func (h *MessageHandlers) List(c *gin.Context) {
	subjectID, isAdmin, ok := subjectFromContext(c)
	if !ok {
		h.log.Error().Msg("subject not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversationID := c.Param("conversationId")
	conv, err := h.store.GetConversationByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !isAdmin && conv.UserID != subjectID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your conversation"})
		return
	}

	msgs, err := h.store.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, proto.FromMessage(m))
	}
	c.JSON(http.StatusOK, response)
}
