package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tripdesk/tripdesk-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func seedUser(t *testing.T, s *SQLiteStore, name, email string) *store.User {
	t.Helper()

	user, err := s.CreateUser(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

func seedAdmin(t *testing.T, s *SQLiteStore, name, email string) *store.Admin {
	t.Helper()

	admin, err := s.CreateAdmin(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("failed to create admin %s: %v", email, err)
	}
	return admin
}

func TestNewWithSetupSeedsFixture(t *testing.T) {
	now := time.Now().UTC()
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(
			`INSERT INTO users (id, name, email, password_hash) VALUES (?, ?, ?, ?)`,
			"u-seed", "Seeded", "seeded@example.com", "hash",
		); err != nil {
			return err
		}
		_, err := db.Exec(
			`INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			"c-seed", "u-seed", now, now,
		)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create seeded store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	conv, err := s.GetOrCreateConversation(context.Background(), "u-seed")
	if err != nil {
		t.Fatalf("get-or-create on seeded store: %v", err)
	}
	if conv.ID != "c-seed" {
		t.Fatalf("expected the seeded conversation, got %s", conv.ID)
	}
	if conv.Owner == nil || conv.Owner.Name != "Seeded" {
		t.Fatalf("seeded owner profile not resolved: %+v", conv.Owner)
	}
}

func TestNewWithSetupFailingSetupClosesStore(t *testing.T) {
	_, err := NewWithSetup(":memory:", func(*sql.DB) error {
		return errors.New("bad seed")
	})
	if err == nil {
		t.Fatal("expected setup error to propagate")
	}
}

func TestGetOrCreateConversationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Maya", "maya@example.com")

	first, err := s.GetOrCreateConversation(ctx, user.ID)
	if err != nil {
		t.Fatalf("first get-or-create: %v", err)
	}
	if first.UserID != user.ID {
		t.Fatalf("conversation owned by %s, want %s", first.UserID, user.ID)
	}
	if first.Owner == nil || first.Owner.Email != "maya@example.com" {
		t.Fatalf("owner profile not resolved: %+v", first.Owner)
	}

	second, err := s.GetOrCreateConversation(ctx, user.ID)
	if err != nil {
		t.Fatalf("second get-or-create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second call created a new conversation: %s vs %s", second.ID, first.ID)
	}
}

func TestGetOrCreateConversationConcurrentFirstContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Omar", "omar@example.com")

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := s.GetOrCreateConversation(ctx, user.ID)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d saw error: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got conversation %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
}

func TestGetOrCreateConversationUnknownUser(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetOrCreateConversation(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveMessageOrderingAndTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Lena", "lena@example.com")
	admin := seedAdmin(t, s, "Agent", "agent@example.com")
	conv, err := s.GetOrCreateConversation(ctx, user.ID)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}

	// Two messages share the exact same timestamp; insertion order
	// must break the tie and stay stable across reads.
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	msgs := []*store.Message{
		{ConversationID: conv.ID, SenderType: store.SenderUser, SenderUserID: user.ID, Body: "hi", CreatedAt: at},
		{ConversationID: conv.ID, SenderType: store.SenderAdmin, SenderAdminID: admin.ID, Body: "hello", CreatedAt: at},
		{ConversationID: conv.ID, SenderType: store.SenderUser, SenderUserID: user.ID, Body: "later", CreatedAt: at.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save %q: %v", m.Body, err)
		}
		if m.ID == "" {
			t.Fatal("save did not assign an id")
		}
	}

	for round := 0; round < 3; round++ {
		got, err := s.ListMessages(ctx, conv.ID)
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(got))
		}
		want := []string{"hi", "hello", "later"}
		for i, w := range want {
			if got[i].Body != w {
				t.Fatalf("round %d: position %d is %q, want %q", round, i, got[i].Body, w)
			}
		}
	}
}

func TestListMessagesResolvesSenderProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Lena", "lena@example.com")
	admin := seedAdmin(t, s, "Agent Smith", "agent@example.com")
	conv, _ := s.GetOrCreateConversation(ctx, user.ID)

	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: conv.ID, SenderType: store.SenderUser, SenderUserID: user.ID, Body: "need help",
	}); err != nil {
		t.Fatalf("save user message: %v", err)
	}
	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: conv.ID, SenderType: store.SenderAdmin, SenderAdminID: admin.ID, Body: "on it",
	}); err != nil {
		t.Fatalf("save admin message: %v", err)
	}

	got, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if got[0].SenderName != "Lena" || got[0].SenderEmail != "lena@example.com" {
		t.Fatalf("user sender profile not resolved: %+v", got[0])
	}
	if got[1].SenderName != "Agent Smith" || got[1].SenderEmail != "agent@example.com" {
		t.Fatalf("admin sender profile not resolved: %+v", got[1])
	}
}

func TestSaveMessageValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Nico", "nico@example.com")
	conv, _ := s.GetOrCreateConversation(ctx, user.ID)

	tests := []struct {
		name string
		msg  *store.Message
	}{
		{
			name: "empty body and no image",
			msg:  &store.Message{ConversationID: conv.ID, SenderType: store.SenderUser, SenderUserID: user.ID},
		},
		{
			name: "admin type without admin id",
			msg:  &store.Message{ConversationID: conv.ID, SenderType: store.SenderAdmin, SenderUserID: user.ID, Body: "x"},
		},
		{
			name: "user type with admin id set",
			msg:  &store.Message{ConversationID: conv.ID, SenderType: store.SenderUser, SenderUserID: user.ID, SenderAdminID: "a1", Body: "x"},
		},
		{
			name: "unknown sender type",
			msg:  &store.Message{ConversationID: conv.ID, SenderType: "BOT", SenderUserID: user.ID, Body: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SaveMessage(ctx, tt.msg); !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	// None of the rejected messages may have been written.
	got, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty log after rejected writes, got %d messages", len(got))
	}
}

func TestSaveMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	user := seedUser(t, s, "Nico", "nico@example.com")
	err := s.SaveMessage(context.Background(), &store.Message{
		ConversationID: "ghost",
		SenderType:     store.SenderUser,
		SenderUserID:   user.ID,
		Body:           "hello?",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImageOnlyMessageIsAccepted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "Rita", "rita@example.com")
	conv, _ := s.GetOrCreateConversation(ctx, user.ID)

	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		SenderType:     store.SenderUser,
		SenderUserID:   user.ID,
		ImageURL:       "/uploads/receipt.png",
	}); err != nil {
		t.Fatalf("image-only message rejected: %v", err)
	}
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u1 := seedUser(t, s, "First", "first@example.com")
	u2 := seedUser(t, s, "Second", "second@example.com")
	c1, _ := s.GetOrCreateConversation(ctx, u1.ID)
	c2, _ := s.GetOrCreateConversation(ctx, u2.ID)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC().Add(-time.Minute)
	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: c1.ID, SenderType: store.SenderUser, SenderUserID: u1.ID, Body: "old", CreatedAt: older,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: c2.ID, SenderType: store.SenderUser, SenderUserID: u2.ID, Body: "recent", CreatedAt: newer,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != c2.ID {
		t.Fatalf("most recently active conversation should be first, got %s", list[0].ID)
	}
	if len(list[0].Messages) != 1 || list[0].Messages[0].Body != "recent" {
		t.Fatalf("messages not loaded with conversation: %+v", list[0].Messages)
	}

	// A new message in c1 must move it to the front.
	if err := s.SaveMessage(ctx, &store.Message{
		ConversationID: c1.ID, SenderType: store.SenderUser, SenderUserID: u1.ID, Body: "bump",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	list, err = s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if list[0].ID != c1.ID {
		t.Fatalf("conversation with newest message should re-sort to front, got %s", list[0].ID)
	}
}
