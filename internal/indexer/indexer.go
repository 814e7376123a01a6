package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Indexer embeds chunks into a vector store under a (user, document) scope and
// answers scoped similarity queries.
type Indexer struct {
	store    vector.Store
	embedder embedding.Embedder
	logger   *zap.Logger

	// docLocks serializes ordinal assignment per document id.
	docLocks sync.Map
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer over store using embedder for chunks and queries.
func NewIndexer(store vector.Store, embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:    store,
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Batch holds embedded chunks that have not been written yet.
type Batch struct {
	scope   models.Scope
	texts   []string
	vectors [][]float32
}

// Len returns the number of chunks in the batch.
func (b *Batch) Len() int { return len(b.texts) }

// Scope returns the owner and document the batch belongs to.
func (b *Batch) Scope() models.Scope { return b.scope }

func validateScope(ownerID, documentID string) error {
	if ownerID == "" || documentID == "" {
		return fmt.Errorf("%w: user=%q document=%q", models.ErrInvalidScope, ownerID, documentID)
	}
	return nil
}

func embeddingError(err error) error {
	if errors.Is(err, models.ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
}

// Prepare embeds every chunk and buffers the result. Nothing is written to the store.
func (idx *Indexer) Prepare(ctx context.Context, chunks []string, ownerID, documentID string) (*Batch, error) {
	if err := validateScope(ownerID, documentID); err != nil {
		return nil, err
	}
	b := &Batch{scope: models.Scope{UserID: ownerID, DocumentID: documentID}, texts: chunks}
	if len(chunks) == 0 {
		return b, nil
	}
	started := time.Now()
	vectors, err := idx.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, embeddingError(err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbeddingService, len(vectors), len(chunks))
	}
	b.vectors = vectors
	idx.logger.Debug("indexer chunks embedded",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return b, nil
}

func (idx *Indexer) documentLock(documentID string) *sync.Mutex {
	mu, _ := idx.docLocks.LoadOrStore(documentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Commit writes a prepared batch in a single store call and returns the record ids.
// Ids are "{documentID}_{ordinal}"; ordinals continue after records already stored for the document.
func (idx *Indexer) Commit(ctx context.Context, b *Batch) ([]string, error) {
	if b == nil || b.Len() == 0 {
		return nil, nil
	}
	mu := idx.documentLock(b.scope.DocumentID)
	mu.Lock()
	defer mu.Unlock()

	next, err := idx.store.Count(ctx, vector.Filter{DocumentID: b.scope.DocumentID})
	if err != nil {
		return nil, fmt.Errorf("count existing vectors: %w", err)
	}
	records := make([]vector.Record, b.Len())
	ids := make([]string, b.Len())
	for i, text := range b.texts {
		ids[i] = b.scope.DocumentID + "_" + strconv.Itoa(next+i)
		records[i] = vector.Record{
			ID:     ids[i],
			Vector: b.vectors[i],
			Text:   text,
			Scope:  b.scope,
		}
	}
	if err := idx.store.Add(ctx, records); err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}
	idx.logger.Debug("indexer vectors committed",
		zap.String("user_id", b.scope.UserID),
		zap.String("document_id", b.scope.DocumentID),
		zap.Int("first_ordinal", next),
		zap.Int("count", len(records)),
	)
	return ids, nil
}

// Add embeds all chunks, then writes them. An embedding failure writes nothing.
func (idx *Indexer) Add(ctx context.Context, chunks []string, ownerID, documentID string) error {
	b, err := idx.Prepare(ctx, chunks, ownerID, documentID)
	if err != nil {
		return err
	}
	_, err = idx.Commit(ctx, b)
	return err
}

// Query returns up to topK chunk texts from the given user's document, most similar first.
// Both scope ids are required. No match yields an empty slice.
func (idx *Indexer) Query(ctx context.Context, text, ownerID, documentID string, topK int) ([]string, error) {
	if err := validateScope(ownerID, documentID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfiguration, topK)
	}
	q, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, embeddingError(err)
	}
	matches, err := idx.store.Search(ctx, q, vector.Filter{UserID: ownerID, DocumentID: documentID}, topK)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}
	idx.logger.Debug("indexer query",
		zap.String("user_id", ownerID),
		zap.String("document_id", documentID),
		zap.Int("matches", len(out)),
	)
	return out, nil
}

// Size returns the total number of stored vectors.
func (idx *Indexer) Size() int {
	return idx.store.Size()
}
