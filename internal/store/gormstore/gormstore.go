// Package gormstore persists conversations and users through gorm on sqlite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

type conversationRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	OwnerEmail string `gorm:"primaryKey;size:320"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

func (conversationRecord) TableName() string { return "conversations" }

type messageRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	OwnerEmail     string    `gorm:"primaryKey;size:320;index:idx_messages_conversation,priority:1"`
	ConversationID string    `gorm:"size:64;not null;index:idx_messages_conversation,priority:2"`
	Text           string    `gorm:"type:text;not null"`
	Sender         string    `gorm:"size:8;not null"`
	SentAt         time.Time `gorm:"not null"`
}

func (messageRecord) TableName() string { return "messages" }

type userRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"size:64;uniqueIndex;not null"`
	Email        string `gorm:"size:320;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"size:16;not null"`
	IsActive     bool   `gorm:"not null"`
	CreatedAt    time.Time
	LastLogin    *time.Time
}

func (userRecord) TableName() string { return "users" }

// Store implements store.Store on a gorm database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		path = filepath.Join("data", "advisor.db")
	}
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite allows a single writer; serialise access through one connection.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, logger)
}

// New wraps an existing gorm handle and runs AutoMigrate on it.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&conversationRecord{}, &messageRecord{}, &userRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// SaveMessage upserts the conversation row and the message.
func (s *Store) SaveMessage(ctx context.Context, owner, conversationID string, msg chat.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv := conversationRecord{ID: conversationID, OwnerEmail: owner}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "owner_email"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&conv).Error; err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		rec := messageRecord{
			ID:             msg.ID,
			OwnerEmail:     owner,
			ConversationID: conversationID,
			Text:           msg.Text,
			Sender:         string(msg.Sender),
			SentAt:         msg.Timestamp.UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "owner_email"}},
			DoUpdates: clause.AssignmentColumns([]string{"conversation_id", "text", "sender", "sent_at"}),
		}).Create(&rec).Error; err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to save message",
			zap.String("conversationId", conversationID),
			zap.String("messageId", msg.ID),
			zap.Error(err))
	}
	return err
}

// ListMessages returns the transcript ordered by timestamp.
func (s *Store) ListMessages(ctx context.Context, owner, conversationID string) ([]chat.Message, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&conversationRecord{}).
		Where("id = ? AND owner_email = ?", conversationID, owner).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if count == 0 {
		return nil, store.ErrConversationNotFound
	}

	var records []messageRecord
	if err := db.Where("owner_email = ? AND conversation_id = ?", owner, conversationID).
		Order("sent_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]chat.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, chat.Message{
			ID:        rec.ID,
			Text:      rec.Text,
			Sender:    chat.Sender(rec.Sender),
			Timestamp: rec.SentAt.UTC(),
		})
	}
	return messages, nil
}

type summaryRow struct {
	ID           string
	OwnerEmail   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// ListConversations returns the owner's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, owner string) ([]chat.ConversationSummary, error) {
	var rows []summaryRow
	err := s.db.WithContext(ctx).
		Table("conversations AS c").
		Select("c.id, c.owner_email, c.created_at, c.updated_at, COUNT(m.id) AS message_count").
		Joins("LEFT JOIN messages AS m ON m.owner_email = c.owner_email AND m.conversation_id = c.id").
		Where("c.owner_email = ?", owner).
		Group("c.id, c.owner_email, c.created_at, c.updated_at").
		Order("c.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]chat.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, chat.ConversationSummary{
			ID:           row.ID,
			OwnerEmail:   row.OwnerEmail,
			MessageCount: row.MessageCount,
			CreatedAt:    row.CreatedAt.UTC(),
			UpdatedAt:    row.UpdatedAt.UTC(),
		})
	}
	return summaries, nil
}

// DeleteConversation removes one owner's copy of a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, owner, conversationID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_email = ? AND conversation_id = ?", owner, conversationID).
			Delete(&messageRecord{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}

		res := tx.Where("id = ? AND owner_email = ?", conversationID, owner).Delete(&conversationRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrConversationNotFound
		}
		return nil
	})
}

func toUserRecord(u *user.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt.UTC(),
		LastLogin:    u.LastLogin,
	}
}

func fromUserRecord(rec userRecord) *user.User {
	u := &user.User{
		ID:           rec.ID,
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         user.Role(rec.Role),
		IsActive:     rec.IsActive,
		CreatedAt:    rec.CreatedAt.UTC(),
	}
	if rec.LastLogin != nil {
		t := rec.LastLogin.UTC()
		u.LastLogin = &t
	}
	return u
}

// CreateUser inserts a user; email and username must be unique.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRecord{}).
			Where("email = ? OR username = ?", u.Email, u.Username).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrDuplicateUser
		}

		rec := toUserRecord(u)
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return store.ErrDuplicateUser
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (s *Store) firstUser(ctx context.Context, query string, arg any) (*user.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return fromUserRecord(rec), nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	return s.firstUser(ctx, "id = ?", id)
}

// GetUserByEmail looks up a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.firstUser(ctx, "email = ?", email)
}

// GetUserByUsername looks up a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	return s.firstUser(ctx, "username = ?", username)
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	var records []userRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]user.User, 0, len(records))
	for _, rec := range records {
		users = append(users, *fromUserRecord(rec))
	}
	return users, nil
}

// UpdateUser overwrites a stored user.
func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userRecord
		if err := tx.Where("id = ?", u.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrUserNotFound
			}
			return err
		}

		var clash int64
		if err := tx.Model(&userRecord{}).
			Where("id <> ? AND (email = ? OR username = ?)", u.ID, u.Email, u.Username).
			Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return store.ErrDuplicateUser
		}

		rec := toUserRecord(u)
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&userRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
