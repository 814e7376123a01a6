// Package vector provides scoped similarity stores for chunk embeddings.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Record is one stored chunk embedding with its scope tags.
type Record = models.IndexedVector

// Filter restricts a search or count by scope. Empty fields match any value.
type Filter = models.Scope

// Match is a search hit.
type Match struct {
	Record
	Score float64 // cosine similarity
}

// Store defines vector storage and scoped similarity search.
type Store interface {
	Add(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, filter Filter, k int) ([]Match, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Size() int
	Close() error
}

func matches(f Filter, s models.Scope) bool {
	if f.UserID != "" && f.UserID != s.UserID {
		return false
	}
	if f.DocumentID != "" && f.DocumentID != s.DocumentID {
		return false
	}
	return true
}
