package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when a write is rejected before persistence.
	ErrValidation = errors.New("validation failed")
)

// User represents a site visitor with a support conversation.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Admin represents an agency staff account.
type Admin struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is the single support thread owned by one user.
type Conversation struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Owner carries the user's public profile fields when the
	// conversation is loaded for display; nil otherwise.
	Owner *User
	// Messages is the full ascending message list when loaded.
	Messages []*Message
}

// SenderType discriminates who authored a message.
type SenderType string

const (
	SenderAdmin SenderType = "ADMIN"
	SenderUser  SenderType = "USER"
)

// Valid reports whether the sender type is a known value.
func (s SenderType) Valid() bool {
	return s == SenderAdmin || s == SenderUser
}

// Message is a persisted chat message. Messages are append-only.
type Message struct {
	ID             string
	ConversationID string
	SenderType     SenderType
	SenderAdminID  string // set iff SenderType == SenderAdmin
	SenderUserID   string // set iff SenderType == SenderUser
	Body           string
	ImageURL       string
	CreatedAt      time.Time

	// SenderName and SenderEmail are the resolved profile fields of
	// whichever sender id is populated; filled on reads.
	SenderName  string
	SenderEmail string
}

// Validate checks sender consistency and body/attachment presence.
func (m *Message) Validate() error {
	if !m.SenderType.Valid() {
		return ErrValidation
	}
	switch m.SenderType {
	case SenderAdmin:
		if m.SenderAdminID == "" || m.SenderUserID != "" {
			return ErrValidation
		}
	case SenderUser:
		if m.SenderUserID == "" || m.SenderAdminID != "" {
			return ErrValidation
		}
	}
	if m.Body == "" && m.ImageURL == "" {
		return ErrValidation
	}
	return nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// AdminStore handles staff account persistence.
type AdminStore interface {
	// CreateAdmin creates a new staff account with hashed password.
	CreateAdmin(ctx context.Context, name, email, passwordHash string) (*Admin, error)

	// GetAdminByID retrieves a staff account by ID.
	GetAdminByID(ctx context.Context, id string) (*Admin, error)

	// GetAdminByEmail retrieves a staff account by email.
	GetAdminByEmail(ctx context.Context, email string) (*Admin, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// GetOrCreateConversation returns the conversation owned by userID,
	// creating it on first contact. Concurrent first contact from the
	// same user resolves to a single row; callers never observe the race.
	GetOrCreateConversation(ctx context.Context, userID string) (*Conversation, error)

	// ListConversations returns every conversation with its owner's
	// profile and full message list, ordered by last activity descending.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// GetConversationByID returns one conversation with its messages,
	// or ErrNotFound.
	GetConversationByID(ctx context.Context, id string) (*Conversation, error)
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	// SaveMessage validates and appends a message, filling in its
	// generated ID and timestamp and bumping the parent conversation's
	// last activity. Returns ErrNotFound for an unknown conversation
	// and ErrValidation for a malformed message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns all messages of a conversation ordered by
	// creation time ascending, stable on ties by insertion order, with
	// sender profile fields resolved.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	AdminStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
