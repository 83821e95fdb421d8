package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	"github.com/cloudwego/eino/components/model"
)

// Provider names a chat model backend.
type Provider string

// Supported providers.
const (
	ProviderUnknown   Provider = ""
	ProviderOpenAI    Provider = "openai"
	ProviderClaude    Provider = "claude"
	ProviderClaudeCLI Provider = "claude-cli"
	ProviderOllama    Provider = "ollama"
	ProviderQwen      Provider = "qwen"
	ProviderARK       Provider = "ark"
	ProviderDeepSeek  Provider = "deepseek"
)

// Default endpoints for OpenAI-compatible providers.
const (
	defaultQwenBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com"
)

// ParseProvider maps a provider name or alias to a Provider.
func ParseProvider(s string) Provider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI
	case "claude", "anthropic":
		return ProviderClaude
	case "claude-cli", "claude_cli", "cli":
		return ProviderClaudeCLI
	case "ollama":
		return ProviderOllama
	case "qwen", "dashscope", "tongyi":
		return ProviderQwen
	case "ark", "doubao":
		return ProviderARK
	case "deepseek":
		return ProviderDeepSeek
	}
	return ProviderUnknown
}

// ModelConfig selects and configures a chat model.
type ModelConfig struct {
	Provider  Provider      `json:"provider" mapstructure:"provider"`
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	APIKey    string        `json:"api_key" mapstructure:"api_key"`
	Model     string        `json:"model" mapstructure:"model"`
	MaxTokens int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	// ClaudePath is the claude binary for ProviderClaudeCLI.
	ClaudePath string `json:"claude_path" mapstructure:"claude_path"`
}

// Defaults applied by NewChatModel.
const (
	DefaultMaxTokens = 4096
	DefaultTimeout   = 2 * time.Minute
)

// NewChatModel builds the chat model cfg describes. Sampling temperature is
// set per call by the role that uses the model.
func NewChatModel(ctx context.Context, cfg ModelConfig) (model.BaseChatModel, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var (
		m   model.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		m, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case ProviderDeepSeek:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultDeepSeekBaseURL
		}
		m, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case ProviderQwen:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultQwenBaseURL
		}
		m, err = qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case ProviderClaude:
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		m, err = claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case ProviderOllama:
		m, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case ProviderARK:
		m, err = ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &cfg.MaxTokens,
		})
	case ProviderClaudeCLI:
		opts := []ClaudeOption{WithTimeout(cfg.Timeout), WithMaxTokens(cfg.MaxTokens)}
		if cfg.ClaudePath != "" {
			opts = append(opts, WithClaudePath(cfg.ClaudePath))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		return NewClaudeCLI(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Provider, err)
	}
	return m, nil
}
