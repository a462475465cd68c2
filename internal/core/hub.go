package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

// Fanout relays room events between processes. The in-memory rooms
// are per-process; a bridge implementation keeps them consistent
// across a multi-process deployment. Optional.
type Fanout interface {
	// Publish relays a new-message event for the given room to other
	// processes. It must not deliver the event back to the publisher.
	Publish(ctx context.Context, room string, conv *store.Conversation, clientTempID string) error
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

type roomEvent struct {
	room         string
	conversation *store.Conversation
	clientTempID string
}

type roomJoin struct {
	client *Client
	tempID string
	room   string
}

// Hub owns all rooms and serializes room state in one loop. Store
// calls run in per-command goroutines so one slow write never stalls
// other connections; only the resulting room mutations and broadcasts
// re-enter the loop.
type Hub struct {
	store  store.Store
	fanout Fanout
	log    zerolog.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	joins      chan roomJoin
	broadcasts chan roomEvent

	rooms map[string]*Room
}

// NewHub creates a hub backed by the given store. The fanout bridge
// may be nil for single-process deployments.
func NewHub(st store.Store, fanout Fanout, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:      st,
		fanout:     fanout,
		log:        *logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		joins:      make(chan roomJoin, 64),
		broadcasts: make(chan roomEvent, 64),
		rooms:      make(map[string]*Room),
	}
}

// RegisterClient attaches a client to the hub and starts consuming
// its commands.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient detaches a client; its room memberships are
// abandoned implicitly.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// DeliverRemote applies a new-message event received from another
// process to the local room only.
func (h *Hub) DeliverRemote(room string, conv *store.Conversation, clientTempID string) {
	select {
	case h.broadcasts <- roomEvent{room: room, conversation: conv, clientTempID: clientTempID}:
	default:
		h.log.Warn().Str("room", room).Msg("remote event dropped, hub busy")
	}
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.removeClient(c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case j := <-h.joins:
			h.applyJoin(j.client, j.tempID, j.room)
		case re := <-h.broadcasts:
			h.broadcastLocal(re.room, &Event{
				Kind:         EventNewMessage,
				Room:         re.room,
				ClientTempID: re.clientTempID,
				Conversation: re.conversation,
			})
		}
	}
}

// pump forwards one client's commands into the hub loop.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	for name := range c.Rooms {
		if room, ok := h.rooms[name]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, name)
			}
		}
	}
	c.Rooms = make(map[string]struct{})
	c.markDone()
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd)
	case CommandSendMessage:
		go h.handleSend(ctx, c, cmd)
	default:
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  coreError(ErrCodeBadRequest, "unknown command"),
		})
	}
}

// handleJoin subscribes the client to a room derived server-side.
// User connections only ever join their own room; staff connections
// join the room of the conversation they name. Joining twice is a
// no-op. The staff path needs a conversation lookup, so it resolves
// in its own goroutine and re-enters the loop through h.joins.
func (h *Hub) handleJoin(ctx context.Context, c *Client, cmd *Command) {
	if !c.IsAdmin {
		h.applyJoin(c, cmd.TempID, RoomFor(c.UserID))
		return
	}
	if cmd.ConversationID == "" {
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  coreError(ErrCodeBadRequest, "conversation id is required"),
		})
		return
	}
	go func() {
		conv, err := h.store.GetConversationByID(ctx, cmd.ConversationID)
		if err != nil {
			h.sendEvent(c, &Event{
				Kind:   EventError,
				TempID: cmd.TempID,
				Error:  h.storeError(err, "conversation not found"),
			})
			return
		}
		select {
		case h.joins <- roomJoin{client: c, tempID: cmd.TempID, room: RoomFor(conv.UserID)}:
		case <-ctx.Done():
		}
	}()
}

// applyJoin mutates room state; it only runs on the hub loop.
func (h *Hub) applyJoin(c *Client, tempID, roomName string) {
	select {
	case <-c.Done():
		return
	default:
	}

	room, ok := h.rooms[roomName]
	if !ok {
		room = NewRoom(roomName)
		h.rooms[roomName] = room
	}
	room.AddClient(c)
	c.Rooms[roomName] = struct{}{}

	h.log.Debug().Str("room", roomName).Str("client_id", c.ID).Msg("client joined room")
	h.sendEvent(c, &Event{Kind: EventAck, TempID: tempID, Room: roomName})
}

// handleSend persists the message, then fans the updated conversation
// out to the owner's room. Persistence failure acks an error to the
// originator and nothing is broadcast. It runs off the hub loop; the
// broadcast re-enters through h.broadcasts.
func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	msg := cmd.Message
	msg.ConversationID = cmd.ConversationID

	// The sender identity comes from the connection, not the payload.
	if c.IsAdmin {
		msg.SenderType = store.SenderAdmin
		msg.SenderAdminID = c.UserID
		msg.SenderUserID = ""
	} else {
		msg.SenderType = store.SenderUser
		msg.SenderUserID = c.UserID
		msg.SenderAdminID = ""
	}

	conv, err := h.store.GetConversationByID(ctx, cmd.ConversationID)
	if err != nil {
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  h.storeError(err, "conversation not found"),
		})
		return
	}
	if !c.IsAdmin && conv.UserID != c.UserID {
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  coreError(ErrCodeUnauthorized, "not your conversation"),
		})
		return
	}

	if err := h.store.SaveMessage(ctx, &msg); err != nil {
		h.log.Warn().Err(err).Str("conversation_id", cmd.ConversationID).Msg("save message failed")
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  h.storeError(err, "message rejected"),
		})
		return
	}

	// Reload so the broadcast carries the authoritative, re-sorted list.
	updated, err := h.store.GetConversationByID(ctx, cmd.ConversationID)
	if err != nil {
		h.sendEvent(c, &Event{
			Kind:   EventError,
			TempID: cmd.TempID,
			Error:  h.storeError(err, "conversation reload failed"),
		})
		return
	}

	h.sendEvent(c, &Event{Kind: EventAck, TempID: cmd.TempID, Message: &msg})

	roomName := RoomFor(updated.UserID)
	select {
	case h.broadcasts <- roomEvent{room: roomName, conversation: updated, clientTempID: cmd.TempID}:
	case <-ctx.Done():
		return
	}

	if h.fanout != nil {
		if err := h.fanout.Publish(ctx, roomName, updated, cmd.TempID); err != nil {
			h.log.Warn().Err(err).Str("room", roomName).Msg("fanout publish failed")
		}
	}
}

// broadcastLocal emits to the local room's subscribers. A room with
// no subscribers is not an error; the message is already durable.
func (h *Hub) broadcastLocal(roomName string, event *Event) {
	if room, ok := h.rooms[roomName]; ok {
		room.Broadcast(event)
	}
}

func (h *Hub) sendEvent(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}

func (h *Hub) storeError(err error, msg string) *CoreError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeNotFound, msg)
	case errors.Is(err, store.ErrValidation):
		return coreError(ErrCodeValidation, "message must carry text or an image from a single sender")
	default:
		return coreError(ErrCodeStorage, "storage failure")
	}
}
