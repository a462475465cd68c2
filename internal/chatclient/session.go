package chatclient

import (
	"context"
	"sync"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

// RejectedFunc receives the rolled-back input text and the server's
// error when an optimistic send is rejected after the fact.
type RejectedFunc func(text string, serverErr proto.Error)

// rejections rolls back a rejected placeholder and hands the recovered
// text to the registered handler so the UI can restore it.
type rejections struct {
	mu      sync.Mutex
	handler RejectedFunc
}

func (r *rejections) set(fn RejectedFunc) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

func (r *rejections) notify(threads *ThreadSet, tempID string, serverErr proto.Error) {
	text, ok := threads.Rollback(tempID)
	if !ok {
		return
	}
	r.mu.Lock()
	fn := r.handler
	r.mu.Unlock()
	if fn != nil {
		fn(text, serverErr)
	}
}

// optimisticSend inserts the local placeholder first, then writes the
// frame. A write failure rolls the placeholder back immediately; a
// server rejection arrives later as an error frame and is rolled back
// by the session's OnServerError handler.
func optimisticSend(ctx context.Context, rt *Realtime, threads *ThreadSet, conversationID, text, imageURL string) error {
	tempID := threads.OptimisticSend(conversationID, text, imageURL)
	if err := rt.Send(ctx, conversationID, tempID, text, imageURL); err != nil {
		threads.Rollback(tempID)
		return err
	}
	return nil
}
