package chatclient

import (
	"context"
	"fmt"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

// StaffSession drives the agency-side surface: every conversation in
// one list, unread counters, sends into whichever thread is selected.
type StaffSession struct {
	api      *APIClient
	rt       *Realtime
	threads  *ThreadSet
	account  Account
	rejected rejections
}

// NewStaffSession logs a staff account in and prepares its realtime
// connection. Start must be called before the session is usable.
func NewStaffSession(ctx context.Context, baseURL, email, password string) (*StaffSession, error) {
	api := NewAPIClient(baseURL)
	account, err := api.AdminLogin(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}

	rt := NewRealtime(Config{
		BaseURL:       baseURL,
		Token:         account.Token,
		AutoReconnect: true,
	})

	s := &StaffSession{
		api:     api,
		rt:      rt,
		threads: NewThreadSet(account.ID, true),
		account: account,
	}
	rt.OnNewMessage(s.threads.ApplyNewMessage)
	rt.OnServerError(func(tempID string, serverErr proto.Error) {
		s.rejected.notify(s.threads, tempID, serverErr)
	})
	return s, nil
}

// OnSendRejected registers a handler for sends the server rejects
// after the optimistic insert. The handler gets the typed text back.
func (s *StaffSession) OnSendRejected(fn RejectedFunc) {
	s.rejected.set(fn)
}

// Account returns the logged-in staff identity.
func (s *StaffSession) Account() Account {
	return s.account
}

// Realtime exposes the underlying realtime client for state handlers.
func (s *StaffSession) Realtime() *Realtime {
	return s.rt
}

// Start loads all conversations, connects the socket and joins every
// owner room so broadcasts for any thread reach this session.
func (s *StaffSession) Start(ctx context.Context) error {
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	s.threads.Load(convs)

	if err := s.rt.Connect(ctx); err != nil {
		return err
	}
	for _, conv := range convs {
		if _, err := s.rt.Join(ctx, conv.ID); err != nil {
			return fmt.Errorf("join conversation %s: %w", conv.ID, err)
		}
	}
	return nil
}

// Refresh re-syncs the full conversation list from the server and
// joins rooms that appeared since the last load.
func (s *StaffSession) Refresh(ctx context.Context) error {
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	for _, conv := range convs {
		s.threads.Upsert(conv)
		if _, err := s.rt.Join(ctx, conv.ID); err != nil {
			return fmt.Errorf("join conversation %s: %w", conv.ID, err)
		}
	}
	return nil
}

// Threads returns the conversation list, newest activity first.
func (s *StaffSession) Threads() []Thread {
	return s.threads.Ordered()
}

// Select brings one thread on screen and clears its unread counter.
func (s *StaffSession) Select(conversationID string) {
	s.threads.SetActive(conversationID)
}

// Messages returns the selected thread's display list.
func (s *StaffSession) Messages() []proto.MessagePayload {
	return s.threads.Messages(s.threads.Active())
}

// Send posts a reply into the selected thread optimistically. If the
// socket rejects or drops it, the placeholder is rolled back and the
// text returned with the error so the UI can restore it.
func (s *StaffSession) Send(ctx context.Context, text string) error {
	conversationID := s.threads.Active()
	if conversationID == "" {
		return fmt.Errorf("no conversation selected")
	}
	return optimisticSend(ctx, s.rt, s.threads, conversationID, text, "")
}

// Unread returns one thread's unread counter.
func (s *StaffSession) Unread(conversationID string) int {
	return s.threads.Unread(conversationID)
}

// Close tears down the realtime connection.
func (s *StaffSession) Close() error {
	return s.rt.Disconnect()
}
