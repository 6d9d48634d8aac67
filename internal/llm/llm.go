// Package llm builds the tool-calling chat model used by the assistant.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("llm: API key not configured")

// Config selects the provider and model.
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// New creates a chat model for cfg.Provider and binds tools to it.
func New(ctx context.Context, cfg Config, tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		cm  model.ToolCallingChatModel
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		cm, err = newOpenAI(ctx, cfg)
	case ProviderDeepSeek:
		cm, err = newDeepSeek(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %s model: %w", cfg.Provider, err)
	}

	bound, err := cm.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("llm: bind tools: %w", err)
	}
	return bound, nil
}

func newOpenAI(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	name := cfg.Model
	if name == "" {
		name = "gpt-4o-mini"
	}
	conf := &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   name,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		conf.MaxTokens = &maxTokens
	}
	return openai.NewChatModel(ctx, conf)
}

func newDeepSeek(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	name := cfg.Model
	if name == "" {
		name = "deepseek-chat"
	}
	return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     name,
		MaxTokens: cfg.MaxTokens,
	})
}
