package chatclient

import (
	"context"
	"fmt"

	"github.com/tripdesk/tripdesk-server/internal/proto"
)

// UserSession drives the traveler-side widget: one conversation with
// the agency, opened lazily on first contact.
type UserSession struct {
	api      *APIClient
	rt       *Realtime
	threads  *ThreadSet
	account  Account
	convID   string
	rejected rejections
}

func newUserSession(baseURL string, api *APIClient, account Account) *UserSession {
	rt := NewRealtime(Config{
		BaseURL:       baseURL,
		Token:         account.Token,
		AutoReconnect: true,
	})

	s := &UserSession{
		api:     api,
		rt:      rt,
		threads: NewThreadSet(account.ID, false),
		account: account,
	}
	rt.OnNewMessage(s.threads.ApplyNewMessage)
	rt.OnServerError(func(tempID string, serverErr proto.Error) {
		s.rejected.notify(s.threads, tempID, serverErr)
	})
	return s
}

// OnSendRejected registers a handler for sends the server rejects
// after the optimistic insert. The handler gets the typed text back.
func (s *UserSession) OnSendRejected(fn RejectedFunc) {
	s.rejected.set(fn)
}

// NewUserSession logs a site user in and prepares its realtime
// connection. Start must be called before the session is usable.
func NewUserSession(ctx context.Context, baseURL, email, password string) (*UserSession, error) {
	api := NewAPIClient(baseURL)
	account, err := api.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return newUserSession(baseURL, api, account), nil
}

// RegisterUserSession creates a fresh account and returns its session.
func RegisterUserSession(ctx context.Context, baseURL, name, email, password string) (*UserSession, error) {
	api := NewAPIClient(baseURL)
	account, err := api.Register(ctx, name, email, password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return newUserSession(baseURL, api, account), nil
}

// Account returns the logged-in identity.
func (s *UserSession) Account() Account {
	return s.account
}

// Realtime exposes the underlying realtime client for state handlers.
func (s *UserSession) Realtime() *Realtime {
	return s.rt
}

// Start opens the user's conversation, connects the socket and joins
// the own room. The conversation is created on first contact.
func (s *UserSession) Start(ctx context.Context) error {
	conv, err := s.api.Conversation(ctx, s.account.ID)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	s.convID = conv.ID
	s.threads.Load([]proto.ConversationPayload{conv})
	s.threads.SetActive(conv.ID)

	if err := s.rt.Connect(ctx); err != nil {
		return err
	}
	if _, err := s.rt.Join(ctx, ""); err != nil {
		return fmt.Errorf("join own room: %w", err)
	}
	return nil
}

// ConversationID returns the id of the user's single conversation.
func (s *UserSession) ConversationID() string {
	return s.convID
}

// Messages returns the conversation's display list including pending
// optimistic sends.
func (s *UserSession) Messages() []proto.MessagePayload {
	return s.threads.Messages(s.convID)
}

// Send posts a message optimistically. If the socket rejects or drops
// it, the placeholder is rolled back.
func (s *UserSession) Send(ctx context.Context, text string) error {
	if s.convID == "" {
		return fmt.Errorf("session not started")
	}
	return optimisticSend(ctx, s.rt, s.threads, s.convID, text, "")
}

// SendImage posts an image-only message optimistically.
func (s *UserSession) SendImage(ctx context.Context, imageURL string) error {
	if s.convID == "" {
		return fmt.Errorf("session not started")
	}
	return optimisticSend(ctx, s.rt, s.threads, s.convID, "", imageURL)
}

// Close tears down the realtime connection.
func (s *UserSession) Close() error {
	return s.rt.Disconnect()
}
