// Package store defines persistence contracts for conversations and users.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateUser        = errors.New("user already exists")
)

// ConversationRepository persists messages keyed by (owner email, conversation id).
// SaveMessage is an upsert on (owner, message id): the most recent write wins.
type ConversationRepository interface {
	SaveMessage(ctx context.Context, owner, conversationID string, msg chat.Message) error
	ListMessages(ctx context.Context, owner, conversationID string) ([]chat.Message, error)
	ListConversations(ctx context.Context, owner string) ([]chat.ConversationSummary, error)
	DeleteConversation(ctx context.Context, owner, conversationID string) error
}

// UserRepository persists dashboard users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
}

// Store bundles both repositories behind one backend.
type Store interface {
	ConversationRepository
	UserRepository
	Close() error
}
