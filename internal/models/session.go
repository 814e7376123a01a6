package models

// UserSession tracks which document, if any, is the active retrieval scope for a user.
type UserSession struct {
	ActiveDocumentID string `json:"active_document_id,omitempty"`
	InChat           bool   `json:"in_chat"`
}

// HasActiveDocument reports whether a document is selected.
func (s UserSession) HasActiveDocument() bool {
	return s.ActiveDocumentID != ""
}

// State is the per-user conversation state derived from the registry and session.
type State string

const (
	StateNoDocuments        State = "no_documents"
	StateDocumentSelectable State = "document_selectable"
	StateInChat             State = "in_chat"
)
