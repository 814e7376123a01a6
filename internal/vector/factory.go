package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// StoreType names a Store implementation.
type StoreType string

const (
	// StoreTypeMemory uses in-memory brute-force search with an optional snapshot file.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeSQLite keeps vectors in a local SQLite database.
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypeQdrant uses a Qdrant server over REST.
	StoreTypeQdrant StoreType = "qdrant"
)

// NewStore creates the store selected by cfg for vectors of the given dimension.
func NewStore(ctx context.Context, cfg config.VectorConfig, dimensions int) (Store, error) {
	switch StoreType(cfg.Store) {
	case StoreTypeMemory, "":
		return OpenMemoryStore(dimensions, cfg.Path)
	case StoreTypeSQLite:
		return NewSQLiteStore(cfg.Path, dimensions)
	case StoreTypeQdrant:
		return NewQdrantStore(ctx, QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    cfg.Qdrant.Timeout(),
		}, dimensions)
	default:
		return nil, fmt.Errorf("unknown vector store: %s (supported: memory, sqlite, qdrant)", cfg.Store)
	}
}
