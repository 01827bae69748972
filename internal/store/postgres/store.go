package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store on a PostgreSQL database.
type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects, migrates and returns a Store.
func Open(dataSourceName string) (*Store, error) {
	db, err := NewDB(dataSourceName)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// SaveMessage upserts the conversation and the message in one transaction.
func (s *Store) SaveMessage(ctx context.Context, owner, conversationID string, msg chat.Message) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsertConversation = `
		INSERT INTO conversations (id, owner_email, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id, owner_email) DO UPDATE SET updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsertConversation, conversationID, owner); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	const upsertMessage = `
		INSERT INTO messages (id, owner_email, conversation_id, text, sender, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_email, id) DO UPDATE
		SET conversation_id = EXCLUDED.conversation_id,
		    text = EXCLUDED.text,
		    sender = EXCLUDED.sender,
		    sent_at = EXCLUDED.sent_at`
	if _, err := tx.ExecContext(ctx, upsertMessage, msg.ID, owner, conversationID, msg.Text, string(msg.Sender), msg.Timestamp.UTC()); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	return tx.Commit()
}

// ListMessages returns the transcript ordered by timestamp.
func (s *Store) ListMessages(ctx context.Context, owner, conversationID string) ([]chat.Message, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1 AND owner_email = $2)`,
		conversationID, owner).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if !exists {
		return nil, store.ErrConversationNotFound
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, text, sender, sent_at
		FROM messages
		WHERE owner_email = $1 AND conversation_id = $2
		ORDER BY sent_at ASC`, owner, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg    chat.Message
			sender string
		)
		if err := rows.Scan(&msg.ID, &msg.Text, &sender, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Sender = chat.Sender(sender)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListConversations returns the owner's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, owner string) ([]chat.ConversationSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.id, c.owner_email, c.created_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.owner_email = c.owner_email AND m.conversation_id = c.id
		WHERE c.owner_email = $1
		GROUP BY c.id, c.owner_email, c.created_at, c.updated_at
		ORDER BY c.updated_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]chat.ConversationSummary, 0)
	for rows.Next() {
		var sum chat.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.OwnerEmail, &sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		sum.UpdatedAt = sum.UpdatedAt.UTC()
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteConversation removes one owner's copy; messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, owner, conversationID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1 AND owner_email = $2`, conversationID, owner)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConversationNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt.UTC(), nullTime(u.LastLogin))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, username, email, password_hash, role, is_active, created_at, last_login FROM users`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*user.User, error) {
	var (
		u         user.User
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = user.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*user.User, error) {
	u, err := scanUser(s.DB.QueryRowContext(ctx, selectUser+" WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// validUserID reports whether id fits the UUID column; anything else can
// match no row.
func validUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	if !validUserID(id) {
		return nil, store.ErrUserNotFound
	}
	return s.getUser(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	return s.getUser(ctx, "username = $1", username)
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.DB.QueryContext(ctx, selectUser+" ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser overwrites the mutable user columns.
func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	if !validUserID(u.ID) {
		return store.ErrUserNotFound
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, password_hash = $4, role = $5, is_active = $6, last_login = $7
		WHERE id = $1`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, nullTime(u.LastLogin))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if !validUserID(id) {
		return store.ErrUserNotFound
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
