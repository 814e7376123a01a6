package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "openai", "":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey(),
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			Timeout:           cfg.Timeout(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, WithLogger(logger))
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
