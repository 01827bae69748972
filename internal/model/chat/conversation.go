package chat

import (
	"time"

	"github.com/google/uuid"
)

// ConversationIDPrefix marks client generated conversation ids.
const ConversationIDPrefix = "conv_"

// Conversation groups ordered messages under one owning identity.
type Conversation struct {
	ID         string    `json:"id"`
	OwnerEmail string    `json:"ownerEmail"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	OwnerEmail   string    `json:"ownerEmail"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewConversationID returns an opaque client-side conversation id.
func NewConversationID() string {
	return ConversationIDPrefix + uuid.NewString()
}
