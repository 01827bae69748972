package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLangchainModel struct {
	got  []llms.MessageContent
	resp *llms.ContentResponse
	err  error
}

func (f *fakeLangchainModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	return f.resp, f.err
}

func (f *fakeLangchainModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestOpenAIGenerateMapsRoles(t *testing.T) {
	fake := &fakeLangchainModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: " Diversify. "}}}}
	temp := 0.2
	m := newOpenAIChatModel(fake, OpenAIConfig{Temperature: &temp})

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("u"),
		schema.AssistantMessage("a", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "Diversify.", msg.Content)

	require.Len(t, fake.got, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.got[2].Role)
	assert.Len(t, m.callOpts, 1)
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	m := newOpenAIChatModel(&fakeLangchainModel{resp: &llms.ContentResponse{}}, OpenAIConfig{})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("u")})
	require.ErrorIs(t, err, ErrEmptyCandidate)
}

func TestOpenAIGenerateWrapsError(t *testing.T) {
	boom := errors.New("boom")
	m := newOpenAIChatModel(&fakeLangchainModel{err: boom}, OpenAIConfig{})
	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("u")})
	require.ErrorIs(t, err, boom)
}

func TestOpenAIStreamDeliversSingleChunk(t *testing.T) {
	fake := &fakeLangchainModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	m := newOpenAIChatModel(fake, OpenAIConfig{})

	stream, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("u")})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ok", chunk.Content)
}
