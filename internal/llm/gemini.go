package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Google generative-language backend.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     *float32
	TopP            *float32
	MaxOutputTokens int32
	HTTPClient      *http.Client
}

// GeminiChatModel calls generateContent on the Gemini API. The API key is
// sent in the x-goog-api-key header by the genai client.
type GeminiChatModel struct {
	client *genai.Client
	model  string
	cfg    GeminiConfig
}

// NewGeminiChatModel creates a Gemini-backed chat model.
func NewGeminiChatModel(ctx context.Context, cfg GeminiConfig) (*GeminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiChatModel{client: client, model: modelName, cfg: cfg}, nil
}

// Generate sends the conversation and returns the first candidate's text.
func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	system, contents := toGeminiContents(input)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini request has no user content")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     m.cfg.Temperature,
		TopP:            m.cfg.TopP,
		MaxOutputTokens: m.cfg.MaxOutputTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generateContent failed: %w", err)
	}

	text := firstCandidateText(resp)
	if text == "" {
		return nil, ErrEmptyCandidate
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream is not supported by the endpoint contract; the full reply is
// delivered as a single chunk.
func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return singleMessageStream(msg), nil
}

// BindTools always fails.
func (m *GeminiChatModel) BindTools(_ []*schema.ToolInfo) error {
	return ErrToolsUnsupported
}

// toGeminiContents splits system messages into a single instruction and maps
// the remaining turns onto Gemini roles.
func toGeminiContents(input []*schema.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if s := strings.TrimSpace(msg.Content); s != "" {
				system = append(system, s)
			}
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
