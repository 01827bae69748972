package chat

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/store"
)

const maxConversationIDLength = 64

var (
	ErrInvalidEmail         = errors.New("a valid owner email is required")
	ErrConversationRequired = errors.New("conversation id is required")
	ErrInvalidSender        = errors.New("sender must be user or bot")
	ErrEmptyMessage         = errors.New("message text is required")
	ErrConversationNotFound = store.ErrConversationNotFound

	errConversationIDTooLong = errors.New("conversation id is too long")
)

// Service validates conversation writes and reads on top of a repository.
type Service struct {
	repo   store.ConversationRepository
	logger *zap.Logger
}

// NewService wraps repo.
func NewService(repo store.ConversationRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("conversations")}
}

// NormalizeEmail lower-cases and validates an owner address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validateConversationID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrConversationRequired
	}
	if len(id) > maxConversationIDLength {
		return "", errConversationIDTooLong
	}
	return id, nil
}

// SaveMessage stores msg under (owner, conversationID). Missing ids and
// timestamps are filled in; the stored message is returned.
func (s *Service) SaveMessage(ctx context.Context, owner, conversationID string, msg chat.Message) (chat.Message, error) {
	email, err := NormalizeEmail(owner)
	if err != nil {
		return chat.Message{}, err
	}
	if conversationID, err = validateConversationID(conversationID); err != nil {
		return chat.Message{}, err
	}
	if !msg.Sender.Valid() {
		return chat.Message{}, ErrInvalidSender
	}
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Timestamp = msg.Timestamp.UTC()

	if err := s.repo.SaveMessage(ctx, email, conversationID, msg); err != nil {
		return chat.Message{}, err
	}

	s.logger.Debug("message saved",
		zap.String("owner", email),
		zap.String("conversation", conversationID),
		zap.String("message", msg.ID),
		zap.String("sender", string(msg.Sender)))
	return msg, nil
}

// Transcript returns one owner's copy of a conversation ordered by timestamp.
func (s *Service) Transcript(ctx context.Context, owner, conversationID string) ([]chat.Message, error) {
	email, err := NormalizeEmail(owner)
	if err != nil {
		return nil, err
	}
	if conversationID, err = validateConversationID(conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, email, conversationID)
}

// ListConversations returns the owner's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, owner string) ([]chat.ConversationSummary, error) {
	email, err := NormalizeEmail(owner)
	if err != nil {
		return nil, err
	}
	return s.repo.ListConversations(ctx, email)
}

// DeleteConversation removes the owner's copy only.
func (s *Service) DeleteConversation(ctx context.Context, owner, conversationID string) error {
	email, err := NormalizeEmail(owner)
	if err != nil {
		return err
	}
	if conversationID, err = validateConversationID(conversationID); err != nil {
		return err
	}
	if err := s.repo.DeleteConversation(ctx, email, conversationID); err != nil {
		return err
	}
	s.logger.Info("conversation deleted", zap.String("owner", email), zap.String("conversation", conversationID))
	return nil
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrConversationRequired) ||
		errors.Is(err, ErrInvalidSender) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, errConversationIDTooLong)
}
