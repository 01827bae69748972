package widget

import (
	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
)

// Conversation is the cached form of both local buffers.
type Conversation struct {
	ID       string         `json:"id"`
	Messages []chat.Message `json:"messages"`
}

// AuthState is the cached authentication flag.
type AuthState struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// CurrentUser is the cached signed-in profile.
type CurrentUser struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

func loadConversation(s cache.Store, key, kind string) (Conversation, error) {
	var c Conversation
	if _, err := cache.Load(s, key, kind, &c); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func loadPending(s cache.Store) (Conversation, error) {
	return loadConversation(s, cache.KeyPendingConversation, cache.KindPendingConversation)
}

func savePending(s cache.Store, c Conversation) error {
	return cache.Put(s, cache.KeyPendingConversation, cache.KindPendingConversation, c)
}

func loadCurrent(s cache.Store) (Conversation, error) {
	return loadConversation(s, cache.KeyCurrentMessages, cache.KindCurrentMessages)
}

func saveCurrent(s cache.Store, c Conversation) error {
	return cache.Put(s, cache.KeyCurrentMessages, cache.KindCurrentMessages, c)
}

func loadAuth(s cache.Store) (AuthState, error) {
	var a AuthState
	if _, err := cache.Load(s, cache.KeyAuthenticated, cache.KindAuth, &a); err != nil {
		return AuthState{}, err
	}
	return a, nil
}

// upsertMessage replaces a message with the same id or appends it.
func upsertMessage(messages []chat.Message, msg chat.Message) []chat.Message {
	for i := range messages {
		if messages[i].ID == msg.ID {
			messages[i] = msg
			return messages
		}
	}
	return append(messages, msg)
}
