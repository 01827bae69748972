package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelchat "github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	chat "github.com/zhouzirui/fin-advisor/backend/internal/service/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/memory"
)

func TestServiceSaveAndTranscript(t *testing.T) {
	svc := chat.NewService(memory.New(), nil)
	ctx := context.Background()

	saved, err := svc.SaveMessage(ctx, " Alice@Example.com ", "conv_1", modelchat.Message{
		Text:   "  I want to save 50 lakh for a house ",
		Sender: modelchat.SenderUser,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.Timestamp.IsZero())
	assert.Equal(t, time.UTC, saved.Timestamp.Location())
	assert.Equal(t, "I want to save 50 lakh for a house", saved.Text)

	transcript, err := svc.Transcript(ctx, "alice@example.com", "conv_1")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, saved.ID, transcript[0].ID)

	summaries, err := svc.ListConversations(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "alice@example.com", summaries[0].OwnerEmail)
}

func TestServiceValidation(t *testing.T) {
	svc := chat.NewService(memory.New(), nil)
	ctx := context.Background()
	valid := modelchat.Message{Text: "hi", Sender: modelchat.SenderUser}

	cases := []struct {
		name  string
		owner string
		conv  string
		msg   modelchat.Message
		want  error
	}{
		{"missing email", "", "conv_1", valid, chat.ErrInvalidEmail},
		{"bad email", "not-an-email", "conv_1", valid, chat.ErrInvalidEmail},
		{"display name", "Alice <alice@example.com>", "conv_1", valid, chat.ErrInvalidEmail},
		{"missing conversation", "a@example.com", " ", valid, chat.ErrConversationRequired},
		{"bad sender", "a@example.com", "conv_1", modelchat.Message{Text: "hi", Sender: "assistant"}, chat.ErrInvalidSender},
		{"blank text", "a@example.com", "conv_1", modelchat.Message{Text: "  ", Sender: modelchat.SenderBot}, chat.ErrEmptyMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SaveMessage(ctx, tc.owner, tc.conv, tc.msg)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, chat.IsValidationError(err))
		})
	}

	_, err := svc.SaveMessage(ctx, "a@example.com", strings.Repeat("x", 65), valid)
	require.Error(t, err)
	assert.True(t, chat.IsValidationError(err))
}

func TestServiceGuestAddressIsValid(t *testing.T) {
	svc := chat.NewService(memory.New(), nil)
	_, err := svc.SaveMessage(context.Background(), "guest+conv_abc@guest.arth.local", "conv_abc",
		modelchat.NewMessage("hello", modelchat.SenderUser))
	require.NoError(t, err)
}

func TestServiceTranscriptNotFound(t *testing.T) {
	svc := chat.NewService(memory.New(), nil)
	_, err := svc.Transcript(context.Background(), "a@example.com", "missing")
	require.ErrorIs(t, err, chat.ErrConversationNotFound)
	assert.False(t, chat.IsValidationError(err))
}

func TestServiceDeleteConversation(t *testing.T) {
	svc := chat.NewService(memory.New(), nil)
	ctx := context.Background()
	_, err := svc.SaveMessage(ctx, "a@example.com", "conv_1", modelchat.NewMessage("hi", modelchat.SenderUser))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, "a@example.com", "conv_1"))
	require.ErrorIs(t, svc.DeleteConversation(ctx, "a@example.com", "conv_1"), chat.ErrConversationNotFound)
}
