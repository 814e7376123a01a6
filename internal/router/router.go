// Package router drives each user's conversation: it ingests uploads, tracks
// document selection, and answers questions from the active document.
package router

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/registry"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Index is the scoped vector index used for ingestion and retrieval.
type Index interface {
	Prepare(ctx context.Context, chunks []string, ownerID, documentID string) (*indexer.Batch, error)
	Commit(ctx context.Context, b *indexer.Batch) ([]string, error)
	Query(ctx context.Context, text, ownerID, documentID string, topK int) ([]string, error)
	Size() int
}

// Answerer generates an answer from retrieved passages.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []string) (string, error)
}

// Deps are the components a Router composes. All are required.
type Deps struct {
	Extractor *extract.Extractor
	Chunker   *indexer.Chunker
	Index     Index
	Registry  *registry.Registry
	Sessions  *session.Manager
	Answerer  Answerer
	Uploads   *storage.UploadStore
}

// Router orchestrates the per-user state machine. Operations for one user are serialized.
type Router struct {
	deps   Deps
	topK   int
	logger *zap.Logger
	newID  func() string

	userLocks sync.Map
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(r *Router) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(f func() string) Option {
	return func(r *Router) { r.newID = f }
}

// DefaultTopK is the number of passages retrieved when not configured.
const DefaultTopK = 3

// New returns a router over deps.
func New(deps Deps, opts ...Option) (*Router, error) {
	switch {
	case deps.Extractor == nil, deps.Chunker == nil, deps.Index == nil,
		deps.Registry == nil, deps.Sessions == nil, deps.Answerer == nil, deps.Uploads == nil:
		return nil, errors.New("router: missing dependency")
	}
	r := &Router{
		deps:  deps,
		topK:  DefaultTopK,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r, nil
}

func (r *Router) lockUser(userID string) func() {
	mu, _ := r.userLocks.LoadOrStore(userID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// State returns the user's current conversation state.
func (r *Router) State(userID string) models.State {
	unlock := r.lockUser(userID)
	defer unlock()
	return r.state(userID)
}

func (r *Router) state(userID string) models.State {
	if len(r.deps.Registry.ListForOwner(userID)) == 0 {
		return models.StateNoDocuments
	}
	s := r.deps.Sessions.GetOrCreate(userID)
	if s.InChat && s.HasActiveDocument() {
		return models.StateInChat
	}
	return models.StateDocumentSelectable
}

// Documents lists the user's documents in upload order.
func (r *Router) Documents(userID string) []models.Document {
	return r.deps.Registry.ListForOwner(userID)
}

// Session returns a copy of the user's session.
func (r *Router) Session(userID string) models.UserSession {
	return r.deps.Sessions.GetOrCreate(userID)
}

// Status reports counters across all users.
func (r *Router) Status() models.Status {
	st := models.Status{
		Documents: r.deps.Registry.Count(),
		Sessions:  r.deps.Sessions.Count(),
		Vectors:   r.deps.Index.Size(),
	}
	if used, err := r.deps.Uploads.UsageBytes(); err == nil {
		st.UploadBytes = used
	} else {
		r.logger.Warn("upload usage unavailable", zap.Error(err))
	}
	return st
}
