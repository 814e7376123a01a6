package models

// OutcomeKind identifies what the router decided for a user event.
type OutcomeKind string

const (
	OutcomePromptUpload    OutcomeKind = "prompt_upload"
	OutcomePromptSelection OutcomeKind = "prompt_selection"
	OutcomeAnswer          OutcomeKind = "answer"
	OutcomeNoMatch         OutcomeKind = "no_match"
	OutcomeError           OutcomeKind = "error"
)

// Outcome is the result of routing a user event. The messaging adapter renders it.
type Outcome struct {
	Kind  OutcomeKind `json:"kind"`
	State State       `json:"state"`
	// Text is the generated answer for OutcomeAnswer and empty otherwise.
	Text string `json:"text,omitempty"`
	// Documents lists selectable documents for OutcomePromptSelection.
	Documents []Document `json:"documents,omitempty"`
	// ActiveDocumentID is set while the user is in chat.
	ActiveDocumentID string `json:"active_document_id,omitempty"`
	Err              error  `json:"-"`
}

// ErrorMessage returns the error text for OutcomeError, or empty.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
