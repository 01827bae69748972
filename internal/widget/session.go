package widget

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/cache"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/service/advisor"
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message text is required")

// Responder produces the advisory reply for a user turn.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, text string) (string, error)
}

// Session is one widget conversation: auth state, a lazily created
// conversation id and the ordered messages. It is safe for concurrent use.
type Session struct {
	responder  Responder
	reconciler *Reconciler
	store      cache.Store
	logger     *zap.Logger

	mu             sync.Mutex
	auth           AuthState
	conversationID string
	messages       []chat.Message
}

// NewSession restores auth state and the current conversation from store.
func NewSession(responder Responder, reconciler *Reconciler, store cache.Store, logger *zap.Logger) (*Session, error) {
	if responder == nil || reconciler == nil || store == nil {
		return nil, errors.New("session requires a responder, a reconciler and a cache store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		responder:  responder,
		reconciler: reconciler,
		store:      store,
		logger:     logger.Named("session"),
	}

	auth, err := loadAuth(store)
	if err != nil {
		s.logger.Warn("cached auth flag unreadable, starting signed out", zap.Error(err))
	}
	s.auth = auth

	current, err := loadCurrent(store)
	if err != nil {
		s.logger.Warn("cached messages unreadable, starting empty", zap.Error(err))
	}
	s.conversationID = current.ID
	s.messages = current.Messages
	return s, nil
}

// Auth returns the current auth state.
func (s *Session) Auth() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// ConversationID returns the id, empty until the first send.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.messages...)
}

// Send appends the user turn, waits for the advisory reply and appends it.
// Both messages are persisted in the background. A responder failure becomes
// the fallback reply, so the returned bot message is never empty.
func (s *Session) Send(ctx context.Context, text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	userMsg := chat.NewMessage(text, chat.SenderUser)
	conversationID, auth, history := s.appendMessage(userMsg)
	s.reconciler.write(ctx, auth, conversationID, userMsg)

	replyText, err := s.responder.Reply(ctx, history, text)
	replyText = strings.TrimSpace(replyText)
	if err != nil || replyText == "" {
		s.logger.Warn("advisory reply unavailable, using fallback", zap.Error(err))
		replyText = advisor.FallbackMessage
	}

	botMsg := chat.NewMessage(replyText, chat.SenderBot)
	conversationID, auth, _ = s.appendMessage(botMsg)
	s.reconciler.write(ctx, auth, conversationID, botMsg)
	return botMsg, nil
}

// appendMessage records msg, creating the conversation id on first use, and
// mirrors the transcript into the cache. A guest message is buffered for
// replay under the same lock that SignIn and Refresh take, so a concurrent
// sign-in either replays it or sees it as authenticated. It returns the
// history before msg.
func (s *Session) appendMessage(msg chat.Message) (string, AuthState, []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conversationID == "" {
		s.conversationID = chat.NewConversationID()
		s.logger.Debug("conversation started", zap.String("conversation", s.conversationID))
	}
	history := append([]chat.Message(nil), s.messages...)
	s.messages = append(s.messages, msg)

	if isGuest(s.auth) {
		s.reconciler.bufferPending(s.conversationID, msg)
	}
	if err := saveCurrent(s.store, Conversation{ID: s.conversationID, Messages: s.messages}); err != nil {
		s.logger.Warn("failed to cache current messages", zap.Error(err))
	}
	return s.conversationID, s.auth, history
}

// SignIn records the authenticated identity and replays the local buffers
// under it.
func (s *Session) SignIn(ctx context.Context, user CurrentUser) (ReconcileResult, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return ReconcileResult{}, errors.New("email is required to sign in")
	}
	user.Email = email

	s.mu.Lock()
	s.auth = AuthState{Authenticated: true, Email: email}
	err := errors.Join(
		cache.Put(s.store, cache.KeyAuthenticated, cache.KindAuth, s.auth),
		cache.Put(s.store, cache.KeyCurrentUser, cache.KindCurrentUser, user),
	)
	s.mu.Unlock()
	if err != nil {
		return ReconcileResult{}, err
	}

	return s.reconciler.Reconcile(ctx, email)
}

// SignOut drops the identity. Later messages are written under the guest
// address again.
func (s *Session) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auth = AuthState{}
	return errors.Join(
		cache.Put(s.store, cache.KeyAuthenticated, cache.KindAuth, s.auth),
		s.store.Remove(cache.KeyCurrentUser),
	)
}

// Refresh re-reads the cached auth flag, which another process may have
// changed, and reconciles when it turned authenticated. It reports whether
// the auth state changed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	cached, err := loadAuth(s.store)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if cached == s.auth {
		s.mu.Unlock()
		return false, nil
	}
	s.auth = cached
	s.mu.Unlock()

	if cached.Authenticated && cached.Email != "" {
		if _, err := s.reconciler.Reconcile(ctx, cached.Email); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Watch calls Refresh whenever the cache reports an auth change, until ctx
// is done.
func (s *Session) Watch(ctx context.Context, w cache.Watcher, onChange func(AuthState)) error {
	return w.Watch(ctx, func(ev cache.Event) {
		if !ev.Has(cache.KeyAuthenticated) {
			return
		}
		changed, err := s.Refresh(ctx)
		if err != nil {
			s.logger.Warn("refresh after cache change failed", zap.Error(err))
		}
		if changed && onChange != nil {
			onChange(s.Auth())
		}
	})
}

// Reset clears every cached record and the in-memory session. Calling it
// again is a no-op.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auth = AuthState{}
	s.conversationID = ""
	s.messages = nil
	return s.store.Clear()
}
