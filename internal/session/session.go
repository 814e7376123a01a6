// Package session tracks each user's active document and chat mode.
package session

import (
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// DocumentLookup resolves documents by id.
type DocumentLookup interface {
	Get(docID string) (models.Document, error)
}

// Manager holds one session per user, created on first use. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]models.UserSession
	docs     DocumentLookup
}

// NewManager returns a manager that checks document ownership against docs.
func NewManager(docs DocumentLookup) *Manager {
	return &Manager{
		sessions: make(map[string]models.UserSession),
		docs:     docs,
	}
}

// GetOrCreate returns the user's session, creating an empty one if needed.
func (m *Manager) GetOrCreate(userID string) models.UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		m.sessions[userID] = s
	}
	return s
}

// SetActiveDocument selects docID for userID and enters chat mode.
// Returns models.ErrNotFound for unknown documents and models.ErrNotOwner for
// documents owned by someone else; the session is unchanged on error.
func (m *Manager) SetActiveDocument(userID, docID string) error {
	doc, err := m.docs.Get(docID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return fmt.Errorf("%w: document %q", models.ErrNotOwner, docID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = models.UserSession{ActiveDocumentID: docID, InChat: true}
	return nil
}

// Clear drops the active document and leaves chat mode.
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = models.UserSession{}
}

// Count returns the number of known sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
