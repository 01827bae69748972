// Package advisor turns a user turn into one advisory reply from the
// configured chat model, degrading to a fixed message on any failure.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/profile"
)

// FallbackMessage is shown whenever the model cannot produce a reply.
const FallbackMessage = "I'm sorry, I'm having trouble connecting to my advisory service right now. Please try again in a moment."

// DefaultHistoryLimit bounds how many prior turns are sent with each request.
const DefaultHistoryLimit = 10

var (
	errNoModel    = errors.New("no chat model configured")
	errEmptyReply = errors.New("model returned an empty reply")
)

// Options tune a Service.
type Options struct {
	Timeout      time.Duration
	HistoryLimit int
	Profile      profile.Profile
}

// Reply is the outcome of one advisory turn.
type Reply struct {
	Text     string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

// Service answers user turns through an eino prompt chain.
type Service struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	opts   Options
	system string
	logger *zap.Logger
}

// NewService compiles the prompt chain. A nil chatModel yields a Service that
// always answers with FallbackMessage.
func NewService(ctx context.Context, chatModel model.ChatModel, opts Options, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}

	s := &Service{
		opts:   opts,
		system: BuildSystemPrompt(opts.Profile),
		logger: logger.Named("advisor"),
	}
	if chatModel == nil {
		s.logger.Warn("no chat model configured, every reply will be the fallback message")
		return s, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile advisor chain: %w", err)
	}
	s.chain = runnable
	return s, nil
}

// SystemPrompt returns the fixed instruction sent with every request.
func (s *Service) SystemPrompt() string {
	return s.system
}

// Reply issues a single model call for text. It never returns an empty reply:
// blank input and every failure produce FallbackMessage.
func (s *Service) Reply(ctx context.Context, history []chat.Message, text string) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: FallbackMessage, Fallback: true}
	}

	content, err := s.generate(ctx, history, text)
	if err != nil {
		s.logger.Warn("advisory call failed, using fallback", zap.Error(err))
		return Reply{Text: FallbackMessage, Fallback: true}
	}

	s.logger.Debug("advisory reply generated", zap.Int("history", len(history)), zap.Int("length", len(content)))
	return Reply{Text: content}
}

func (s *Service) generate(ctx context.Context, history []chat.Message, text string) (content string, err error) {
	if s.chain == nil {
		return "", errNoModel
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat model panicked: %v", r)
		}
	}()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	response, err := s.chain.Invoke(ctx, s.buildChainInput(history, text))
	if err != nil {
		return "", fmt.Errorf("failed to run advisor chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", errEmptyReply
	}
	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildChainInput(history []chat.Message, text string) map[string]any {
	return map[string]any{
		"system":  s.system,
		"history": s.buildHistoryMessages(history),
		"query":   text,
	}
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	limit := s.opts.HistoryLimit
	if limit == 0 || len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > limit {
		start = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(text))
		case chat.SenderBot:
			// Earlier fallbacks carry no advice worth replaying.
			if text == FallbackMessage {
				continue
			}
			history = append(history, schema.AssistantMessage(text, nil))
		}
	}
	return history
}
