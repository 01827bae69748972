// Package memory keeps conversations and users in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

type conversationKey struct {
	owner string
	id    string
}

type conversation struct {
	createdAt time.Time
	updatedAt time.Time
	messages  []chat.Message
}

// Store implements store.Store with maps guarded by a RWMutex.
type Store struct {
	mu            sync.RWMutex
	conversations map[conversationKey]*conversation
	users         map[string]user.User
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		conversations: make(map[conversationKey]*conversation),
		users:         make(map[string]user.User),
	}
}

var _ store.Store = (*Store)(nil)

// SaveMessage appends the message or replaces the one with the same id.
func (s *Store) SaveMessage(_ context.Context, owner, conversationID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := conversationKey{owner: owner, id: conversationID}
	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation{createdAt: now, messages: make([]chat.Message, 0, 16)}
		s.conversations[key] = conv
	}
	conv.updatedAt = now

	for i := range conv.messages {
		if conv.messages[i].ID == msg.ID {
			conv.messages[i] = msg
			return nil
		}
	}
	conv.messages = append(conv.messages, msg)
	return nil
}

// ListMessages returns a copy of the transcript ordered by timestamp.
func (s *Store) ListMessages(_ context.Context, owner, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationKey{owner: owner, id: conversationID}]
	if !ok {
		return nil, store.ErrConversationNotFound
	}

	copied := make([]chat.Message, len(conv.messages))
	copy(copied, conv.messages)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].Timestamp.Before(copied[j].Timestamp)
	})
	return copied, nil
}

// ListConversations returns the owner's conversations, newest first.
func (s *Store) ListConversations(_ context.Context, owner string) ([]chat.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]chat.ConversationSummary, 0)
	for key, conv := range s.conversations {
		if key.owner != owner {
			continue
		}
		summaries = append(summaries, chat.ConversationSummary{
			ID:           key.id,
			OwnerEmail:   owner,
			MessageCount: len(conv.messages),
			CreatedAt:    conv.createdAt,
			UpdatedAt:    conv.updatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// DeleteConversation removes one owner's copy of a conversation.
func (s *Store) DeleteConversation(_ context.Context, owner, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey{owner: owner, id: conversationID}
	if _, ok := s.conversations[key]; !ok {
		return store.ErrConversationNotFound
	}
	delete(s.conversations, key)
	return nil
}

// CreateUser stores a new user; email and username must be unique.
func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return store.ErrDuplicateUser
		}
	}
	s.users[u.ID] = *u
	return nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

// GetUserByEmail looks up a user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	return s.findUser(func(u user.User) bool { return u.Email == email })
}

// GetUserByUsername looks up a user by username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*user.User, error) {
	return s.findUser(func(u user.User) bool { return u.Username == username })
}

func (s *Store) findUser(match func(user.User) bool) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// ListUsers returns users ordered by creation time.
func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// UpdateUser replaces a stored user.
func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return store.ErrUserNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && (existing.Email == u.Email || existing.Username == u.Username) {
			return store.ErrDuplicateUser
		}
	}
	s.users[u.ID] = *u
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// CountUsers returns the number of stored users.
func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
