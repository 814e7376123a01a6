// Package registry records which documents exist and who owns them.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Registry is an in-memory, insertion-ordered document catalog. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	order []string
	now   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for upload times.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		docs: make(map[string]models.Document),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records a document uploaded now. A duplicate id replaces the earlier
// entry but keeps its position in listings.
func (r *Registry) Register(docID, name, ownerID string) models.Document {
	return r.RegisterDocument(models.Document{ID: docID, Name: name, OwnerID: ownerID})
}

// RegisterDocument records doc as given, filling UploadTime when zero.
func (r *Registry) RegisterDocument(doc models.Document) models.Document {
	if doc.UploadTime.IsZero() {
		doc.UploadTime = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		r.order = append(r.order, doc.ID)
	}
	r.docs[doc.ID] = doc
	return doc
}

// Get returns the document with docID or models.ErrNotFound.
func (r *Registry) Get(docID string) (models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok {
		return models.Document{}, fmt.Errorf("%w: document %q", models.ErrNotFound, docID)
	}
	return doc, nil
}

// ListForOwner returns ownerID's documents in registration order.
func (r *Registry) ListForOwner(ownerID string) []models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Document
	for _, id := range r.order {
		if doc := r.docs[id]; doc.OwnerID == ownerID {
			out = append(out, doc)
		}
	}
	return out
}

// Count returns the number of registered documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
