package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tripdesk/tripdesk-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function
// after the schema is applied. Useful for tests to seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.queryUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.queryUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== AdminStore implementation ====

// CreateAdmin creates a new staff account with hashed password.
func (s *SQLiteStore) CreateAdmin(ctx context.Context, name, email, passwordHash string) (*store.Admin, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO admins (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}

	return s.GetAdminByID(ctx, id)
}

// GetAdminByID retrieves a staff account by ID.
func (s *SQLiteStore) GetAdminByID(ctx context.Context, id string) (*store.Admin, error) {
	return s.queryAdmin(ctx, `SELECT id, name, email, password_hash, created_at FROM admins WHERE id = ?`, id)
}

// GetAdminByEmail retrieves a staff account by email.
func (s *SQLiteStore) GetAdminByEmail(ctx context.Context, email string) (*store.Admin, error) {
	return s.queryAdmin(ctx, `SELECT id, name, email, password_hash, created_at FROM admins WHERE email = ?`, email)
}

func (s *SQLiteStore) queryAdmin(ctx context.Context, query string, arg any) (*store.Admin, error) {
	var admin store.Admin
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&admin.ID,
		&admin.Name,
		&admin.Email,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query admin: %w", err)
	}

	return &admin, nil
}

// ==== ConversationStore implementation ====

// GetOrCreateConversation returns the conversation owned by userID,
// creating it on first contact. The insert is a no-op when a row for
// the user already exists, so a concurrent first contact resolves to
// the single winning row.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, userID string) (*store.Conversation, error) {
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO conversations (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), userID, now, now); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return s.getConversation(ctx, `
		SELECT c.id, c.user_id, c.created_at, c.updated_at, u.id, u.name, u.email, u.created_at
		FROM conversations c
		JOIN users u ON c.user_id = u.id
		WHERE c.user_id = ?
	`, userID)
}

// GetConversationByID returns one conversation with its messages.
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id string) (*store.Conversation, error) {
	return s.getConversation(ctx, `
		SELECT c.id, c.user_id, c.created_at, c.updated_at, u.id, u.name, u.email, u.created_at
		FROM conversations c
		JOIN users u ON c.user_id = u.id
		WHERE c.id = ?
	`, id)
}

func (s *SQLiteStore) getConversation(ctx context.Context, query string, arg any) (*store.Conversation, error) {
	var (
		conv  store.Conversation
		owner store.User
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&owner.ID,
		&owner.Name,
		&owner.Email,
		&owner.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.Owner = &owner

	conv.Messages, err = s.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// ListConversations returns every conversation ordered by last
// activity descending, each with its owner profile and message list.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.user_id, c.created_at, c.updated_at, u.id, u.name, u.email, u.created_at
		FROM conversations c
		JOIN users u ON c.user_id = u.id
		ORDER BY c.updated_at DESC, c.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		var (
			conv  store.Conversation
			owner store.User
		)
		if err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.CreatedAt,
			&conv.UpdatedAt,
			&owner.ID,
			&owner.Name,
			&owner.Email,
			&owner.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.Owner = &owner
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range conversations {
		conv.Messages, err = s.ListMessages(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
	}

	return conversations, nil
}

// ==== MessageStore implementation ====

// SaveMessage validates and appends a message, bumping the parent
// conversation's last activity in the same transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return fmt.Errorf("query conversation: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_type, sender_admin_id, sender_user_id, body, image_url, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.SenderType),
		msg.SenderAdminID,
		msg.SenderUserID,
		msg.Body,
		msg.ImageURL,
		msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, msg.ConversationID,
	); err != nil {
		return fmt.Errorf("bump conversation activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ListMessages returns all messages of a conversation in ascending
// order with sender profile fields resolved.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_type,
		       COALESCE(m.sender_admin_id, ''), COALESCE(m.sender_user_id, ''),
		       m.body, m.image_url, m.created_at,
		       COALESCE(a.name, u.name, ''), COALESCE(a.email, u.email, '')
		FROM messages m
		LEFT JOIN admins a ON m.sender_admin_id = a.id
		LEFT JOIN users u ON m.sender_user_id = u.id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg        store.Message
			senderType string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&senderType,
			&msg.SenderAdminID,
			&msg.SenderUserID,
			&msg.Body,
			&msg.ImageURL,
			&msg.CreatedAt,
			&msg.SenderName,
			&msg.SenderEmail,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SenderType = store.SenderType(senderType)
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
