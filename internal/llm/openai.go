package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI-compatible defaults match a local Ollama install.
const (
	DefaultOpenAIBaseURL = "http://localhost:11434/v1/"
	DefaultOpenAIModel   = "llama3.1:8b"
)

// OpenAIConfig configures any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// OpenAIChatModel bridges a langchaingo model into eino.
type OpenAIChatModel struct {
	llm      llms.Model
	callOpts []llms.CallOption
}

// NewOpenAIChatModel creates the langchaingo OpenAI client.
func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers ignore the token but the client requires one.
		token = "local"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}

	client, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return newOpenAIChatModel(client, cfg), nil
}

func newOpenAIChatModel(client llms.Model, cfg OpenAIConfig) *OpenAIChatModel {
	var opts []llms.CallOption
	if cfg.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*cfg.MaxTokens))
	}
	return &OpenAIChatModel{llm: client, callOpts: opts}
}

// Generate runs one chat completion.
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	messages := make([]llms.MessageContent, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		messages = append(messages, llms.TextParts(toLangchainRole(msg.Role), msg.Content))
	}

	resp, err := m.llm.GenerateContent(ctx, messages, m.callOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyCandidate
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return nil, ErrEmptyCandidate
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream delivers the full reply as one chunk.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return singleMessageStream(msg), nil
}

// BindTools always fails.
func (m *OpenAIChatModel) BindTools(_ []*schema.ToolInfo) error {
	return ErrToolsUnsupported
}

func toLangchainRole(role schema.RoleType) llms.ChatMessageType {
	switch role {
	case schema.System:
		return llms.ChatMessageTypeSystem
	case schema.Assistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
