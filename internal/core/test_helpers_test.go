package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tripdesk/tripdesk-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func noEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

// messageWithBody builds the payload side of a send command; sender
// fields are filled in by the hub from the connection identity.
func messageWithBody(body string) store.Message {
	return store.Message{Body: body}
}

// fakeStore is an in-memory store.Store for hub tests.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	byUser        map[string]string
	messages      map[string][]*store.Message
	nextSeq       int
	failSave      bool
	saveDelay     time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		byUser:        make(map[string]string),
		messages:      make(map[string][]*store.Message),
	}
}

func (f *fakeStore) addConversation(id, userID string) *store.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := &store.Conversation{ID: id, UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.conversations[id] = conv
	f.byUser[userID] = id
	return conv
}

func (f *fakeStore) GetOrCreateConversation(_ context.Context, userID string) (*store.Conversation, error) {
	f.mu.Lock()
	id, ok := f.byUser[userID]
	f.mu.Unlock()
	if !ok {
		return f.addConversation("conv-"+userID, userID), nil
	}
	return f.GetConversationByID(context.Background(), id)
}

func (f *fakeStore) ListConversations(_ context.Context) ([]*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Conversation
	for id := range f.conversations {
		out = append(out, f.snapshotLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) GetConversationByID(_ context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[id]; !ok {
		return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
	}
	return f.snapshotLocked(id), nil
}

func (f *fakeStore) snapshotLocked(id string) *store.Conversation {
	src := f.conversations[id]
	conv := *src
	conv.Messages = append([]*store.Message(nil), f.messages[id]...)
	return &conv
}

func (f *fakeStore) SaveMessage(_ context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if f.saveDelay > 0 {
		time.Sleep(f.saveDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return fmt.Errorf("disk full")
	}
	conv, ok := f.conversations[msg.ConversationID]
	if !ok {
		return fmt.Errorf("conversation: %w", store.ErrNotFound)
	}
	f.nextSeq++
	msg.ID = fmt.Sprintf("m%d", f.nextSeq)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	stored := *msg
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], &stored)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*store.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeStore) CreateUser(context.Context, string, string, string) (*store.User, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	return &store.User{ID: id}, nil
}

func (f *fakeStore) GetUserByEmail(context.Context, string) (*store.User, error) {
	return nil, fmt.Errorf("user: %w", store.ErrNotFound)
}

func (f *fakeStore) CreateAdmin(context.Context, string, string, string) (*store.Admin, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeStore) GetAdminByID(_ context.Context, id string) (*store.Admin, error) {
	return &store.Admin{ID: id}, nil
}

func (f *fakeStore) GetAdminByEmail(context.Context, string) (*store.Admin, error) {
	return nil, fmt.Errorf("admin: %w", store.ErrNotFound)
}

func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)
