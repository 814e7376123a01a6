package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/router"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Components holds the wired pipeline and the resources that need closing.
type Components struct {
	Router   *router.Router
	Embedder embedding.Embedder
	Store    vector.Store
}

// Close flushes the vector store and releases the embedder.
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	return errors.Join(errs...)
}

// initializeComponents wires the pipeline from cfg. Any configuration problem is returned
// wrapping models.ErrInvalidConfiguration and is fatal for the caller.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	logger = utils.OrNop(logger)
	c := &Components{}
	fail := func(err error) (*Components, error) {
		_ = c.Close()
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedder: %w", err))
	}
	c.Embedder = embedder

	store, err := vector.NewStore(ctx, cfg.Vector, embedder.Dimensions())
	if err != nil {
		return fail(fmt.Errorf("failed to initialize vector store: %w", err))
	}
	c.Store = store
	if n := store.Size(); n > 0 {
		logger.Warn("vector store holds vectors from a previous run; their documents are not registered and must be uploaded again",
			zap.String("store", cfg.Vector.Store), zap.Int("vectors", n))
	}
	logger.Info("vector store initialized",
		zap.String("type", cfg.Vector.Store),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()),
	)

	tok, err := indexer.NewCL100KTokenizer()
	if err != nil {
		return fail(fmt.Errorf("failed to load tokenizer: %w", err))
	}
	chunker, err := indexer.NewChunker(tok, cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return fail(err)
	}

	chat, err := llm.NewChatModel(ctx, cfg.Chat)
	if err != nil {
		return fail(err)
	}
	generator := answer.NewGenerator(chat,
		answer.WithTemperature(cfg.Chat.TemperatureOrDefault()),
		answer.WithMaxTokens(cfg.Chat.MaxTokens),
		answer.WithLogger(logger),
	)

	uploads, err := storage.NewUploadStore(cfg.Storage.UploadDir)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize upload storage: %w", err))
	}

	reg := registry.New()
	rt, err := router.New(router.Deps{
		Extractor: extract.NewExtractor(extract.WithLogger(logger)),
		Chunker:   chunker,
		Index:     indexer.NewIndexer(store, embedder, indexer.WithLogger(logger)),
		Registry:  reg,
		Sessions:  session.NewManager(reg),
		Answerer:  generator,
		Uploads:   uploads,
	}, router.WithTopK(cfg.Retrieval.TopK), router.WithLogger(logger))
	if err != nil {
		return fail(err)
	}
	c.Router = rt
	return c, nil
}
