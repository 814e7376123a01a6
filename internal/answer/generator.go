// Package answer turns retrieved passages and a question into a chat-model answer.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	// SystemPrompt instructs the model to answer from context, in Markdown.
	SystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
		"Always format your responses in Markdown. " +
		"If you cannot answer the question based on the context, say so and use general knowledge to answer the question."

	userPromptTemplate = "Context:\n%s\n\nQuestion: %s\n\nPlease answer the question based on the context provided."

	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 1000
)

// Generator asks a chat model to answer a question from passages.
type Generator struct {
	chat        model.BaseChatModel
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator returns a generator backed by chat.
func NewGenerator(chat model.BaseChatModel, opts ...Option) *Generator {
	g := &Generator{
		chat:        chat,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	return g
}

// Messages builds the prompt sent for question over passages.
func Messages(question string, passages []string) []*schema.Message {
	joined := strings.Join(passages, "\n\n")
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(fmt.Sprintf(userPromptTemplate, joined, question)),
	}
}

// Answer returns the model's reply verbatim. Failures wrap models.ErrGeneration.
func (g *Generator) Answer(ctx context.Context, question string, passages []string) (string, error) {
	started := time.Now()
	resp, err := g.chat.Generate(ctx, Messages(question, passages),
		model.WithTemperature(g.temperature),
		model.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", models.ErrGeneration)
	}
	g.logger.Debug("answer generated",
		zap.Int("passages", len(passages)),
		zap.Int("answer_chars", len(resp.Content)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp.Content, nil
}
