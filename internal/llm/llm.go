// Package llm builds the chat model used for answers.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// NewChatModel returns an OpenAI-compatible chat model configured from cfg.
func NewChatModel(ctx context.Context, cfg config.ChatConfig) (model.BaseChatModel, error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing chat API key in env %s", models.ErrInvalidConfiguration, cfg.APIKeyEnv)
	}
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return chat, nil
}
