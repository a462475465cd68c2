package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

func conv(id, userID string, updatedAt int64, msgs ...proto.MessagePayload) proto.ConversationPayload {
	return proto.ConversationPayload{
		ID:        id,
		UserID:    userID,
		CreatedAt: 1,
		UpdatedAt: updatedAt,
		Messages:  msgs,
	}
}

func userMsg(id, convID, userID, text string, at int64) proto.MessagePayload {
	return proto.MessagePayload{
		ID:             id,
		ConversationID: convID,
		SenderType:     "USER",
		SenderUserID:   userID,
		Text:           text,
		CreatedAt:      at,
	}
}

func TestOptimisticSendEchoReplacesPlaceholder(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})
	ts.SetActive("c1")

	tempID := ts.OptimisticSend("c1", "where is my transfer?", "")
	msgs := ts.Messages("c1")
	require.Len(t, msgs, 1)
	require.Equal(t, tempID, msgs[0].ID)
	require.Equal(t, "where is my transfer?", msgs[0].Text)

	// The broadcast echo carries the persisted message and our temp id.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c1", "u1", 20, userMsg("m1", "c1", "u1", "where is my transfer?", 20)),
		ClientTempID: tempID,
	})

	msgs = ts.Messages("c1")
	require.Len(t, msgs, 1, "echo must replace the placeholder, not duplicate it")
	require.Equal(t, "m1", msgs[0].ID)
}

func TestRollbackRestoresText(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})

	tempID := ts.OptimisticSend("c1", "draft text", "")
	require.Len(t, ts.Messages("c1"), 1)

	text, ok := ts.Rollback(tempID)
	require.True(t, ok)
	require.Equal(t, "draft text", text)
	require.Empty(t, ts.Messages("c1"))

	_, ok = ts.Rollback(tempID)
	require.False(t, ok, "second rollback must be a no-op")
}

func TestForeignBroadcastKeepsPendingSends(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})

	tempID := ts.OptimisticSend("c1", "still typing", "")

	// Someone else's message arrives before our ack; our placeholder
	// must survive the reconciliation.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c1", "u1", 20, proto.MessagePayload{
			ID: "m1", ConversationID: "c1", SenderType: "ADMIN", SenderAdminID: "a1",
			Text: "checking now", CreatedAt: 20,
		}),
	})

	msgs := ts.Messages("c1")
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, tempID, msgs[1].ID, "pending send stays after the server list")
}

func TestUnreadCounters(t *testing.T) {
	ts := NewThreadSet("a1", true)
	ts.Load([]proto.ConversationPayload{
		conv("c1", "u1", 10),
		conv("c2", "u2", 11),
	})
	ts.SetActive("c1")

	// A message in the background thread increments its counter.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c2", "u2", 20, userMsg("m1", "c2", "u2", "hi", 20)),
	})
	require.Equal(t, 1, ts.Unread("c2"))
	require.Equal(t, 0, ts.Unread("c1"))

	// A message in the active thread does not.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c1", "u1", 21, userMsg("m2", "c1", "u1", "hello", 21)),
	})
	require.Equal(t, 0, ts.Unread("c1"))

	// Our own echo in a background thread does not count as unread.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c2", "u2", 22,
			userMsg("m1", "c2", "u2", "hi", 20),
			proto.MessagePayload{ID: "m3", ConversationID: "c2", SenderType: "ADMIN", SenderAdminID: "a1", Text: "on it", CreatedAt: 22},
		),
	})
	require.Equal(t, 1, ts.Unread("c2"))

	// Selecting the thread clears it.
	ts.SetActive("c2")
	require.Equal(t, 0, ts.Unread("c2"))
}

func TestOrderedByLastActivity(t *testing.T) {
	ts := NewThreadSet("a1", true)
	ts.Load([]proto.ConversationPayload{
		conv("c1", "u1", 30),
		conv("c2", "u2", 20),
		conv("c3", "u3", 10),
	})

	ordered := ts.Ordered()
	require.Equal(t, []string{"c1", "c2", "c3"}, []string{
		ordered[0].Conversation.ID, ordered[1].Conversation.ID, ordered[2].Conversation.ID,
	})

	// Activity in the oldest thread moves it to the front.
	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c3", "u3", 40, userMsg("m1", "c3", "u3", "anyone there?", 40)),
	})

	ordered = ts.Ordered()
	require.Equal(t, "c3", ordered[0].Conversation.ID)
}

func TestBroadcastForUnknownThreadCreatesIt(t *testing.T) {
	ts := NewThreadSet("a1", true)
	ts.Load(nil)

	ts.ApplyNewMessage(proto.EventNewMessageData{
		Conversation: conv("c9", "u9", 50, userMsg("m1", "c9", "u9", "first contact", 50)),
	})

	ordered := ts.Ordered()
	require.Len(t, ordered, 1)
	require.Equal(t, "c9", ordered[0].Conversation.ID)
	require.Equal(t, 1, ts.Unread("c9"))
}
