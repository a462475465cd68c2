package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		store: st,
		log:   logger,
	}
}

// GetOrCreateForUser returns the single conversation owned by the user
// in the path, creating it on first contact. Users may only open their
// own conversation; staff may open anyone's.
// GET /api/conversations/:userId
func (h *ConversationHandlers) GetOrCreateForUser(c *gin.Context) {
	subjectID, isAdmin, ok := subjectFromContext(c)
	if !ok {
		h.log.Error().Msg("subject not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user id is required"})
		return
	}
	if !isAdmin && subjectID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not your conversation"})
		return
	}

	conv, err := h.store.GetOrCreateConversation(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to get or create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, proto.FromConversation(conv))
}

// List returns every conversation ordered by last activity, newest
// first. Staff only.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	_, isAdmin, ok := subjectFromContext(c)
	if !ok {
		h.log.Error().Msg("subject not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if !isAdmin {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "staff only"})
		return
	}

	convs, err := h.store.ListConversations(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.ConversationPayload, 0, len(convs))
	for _, conv := range convs {
		response = append(response, proto.FromConversation(conv))
	}
	c.JSON(http.StatusOK, response)
}

// GetByID returns one conversation with its full message list. Users
// may only read their own.
// GET /api/conversation/:conversationId
func (h *ConversationHandlers) GetByID(c *gin.Context) {
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

	c.JSON(http.StatusOK, proto.FromConversation(conv))
}
