package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

func TestRejectionDeliversRolledBackText(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})

	tempID := ts.OptimisticSend("c1", "please refund my booking", "")
	require.Len(t, ts.Messages("c1"), 1)

	var r rejections
	var gotText string
	var gotErr proto.Error
	r.set(func(text string, serverErr proto.Error) {
		gotText = text
		gotErr = serverErr
	})

	r.notify(ts, tempID, proto.Error{Code: "rate_limited", Msg: "slow down"})

	require.Equal(t, "please refund my booking", gotText, "typed text must come back on rejection")
	require.Equal(t, "rate_limited", gotErr.Code)
	require.Empty(t, ts.Messages("c1"), "placeholder must be gone")
}

func TestRejectionForUnknownTempIDIsIgnored(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})

	var r rejections
	called := false
	r.set(func(string, proto.Error) { called = true })

	r.notify(ts, "tmp-ghost", proto.Error{Code: "validation", Msg: "empty"})
	require.False(t, called, "no placeholder, nothing to restore")
}

func TestRejectionWithoutHandlerStillRollsBack(t *testing.T) {
	ts := NewThreadSet("u1", false)
	ts.Load([]proto.ConversationPayload{conv("c1", "u1", 10)})

	tempID := ts.OptimisticSend("c1", "hello?", "")
	var r rejections
	r.notify(ts, tempID, proto.Error{Code: "storage", Msg: "storage failure"})
	require.Empty(t, ts.Messages("c1"))
}
