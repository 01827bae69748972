package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/fin-advisor/backend/internal/llm"
)

// Advisor providers.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	Timeout      time.Duration
	HistoryLimit int
	ProfileID    string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.APIKey != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI:
		return c.Model != "" && c.BaseURL != ""
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s provider credentials or model are missing", c.Provider)
	}

	switch c.Provider {
	case ProviderGemini:
		return llm.NewGeminiChatModel(ctx, llm.GeminiConfig{
			APIKey:          c.APIKey,
			Model:           c.Model,
			BaseURL:         c.BaseURL,
			Temperature:     toFloat32(c.Temperature),
			TopP:            toFloat32(c.TopP),
			MaxOutputTokens: toInt32(c.MaxTokens),
		})
	case ProviderOpenAI:
		return llm.NewOpenAIChatModel(llm.OpenAIConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		})
	case ProviderArk:
		var maxTokens *int
		if c.MaxTokens != nil {
			val := *c.MaxTokens
			maxTokens = &val
		}
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: toFloat32(c.Temperature),
			TopP:        toFloat32(c.TopP),
		})
	default:
		return nil, fmt.Errorf("unknown advisor provider %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ADVISOR_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ADVISOR_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ADVISOR_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("ADVISOR_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("ADVISOR_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 0 {
			historyLimit = 0
		} else {
			historyLimit = *override
		}
	}

	cfg := AIConfig{
		Provider:     strings.ToLower(getEnvOrDefault("ADVISOR_PROVIDER", ProviderGemini)),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		Timeout:      time.Duration(timeoutSeconds) * time.Second,
		HistoryLimit: historyLimit,
		ProfileID:    strings.TrimSpace(os.Getenv("ADVISOR_PROFILE")),
	}

	switch cfg.Provider {
	case ProviderGemini:
		cfg.APIKey = getEnvOrDefault("GEMINI_API_KEY", strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")))
		cfg.Model = getEnvOrDefault("GEMINI_MODEL", llm.DefaultGeminiModel)
		cfg.BaseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("ARK_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", llm.DefaultOpenAIModel)
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", llm.DefaultOpenAIBaseURL)
	default:
		return AIConfig{}, fmt.Errorf("invalid ADVISOR_PROVIDER value: %q", cfg.Provider)
	}

	return cfg, nil
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}

func toInt32(v *int) int32 {
	if v == nil {
		return 0
	}
	return int32(*v)
}
