package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Notice renders the user-facing message for an outcome.
func Notice(o models.Outcome) string {
	switch o.Kind {
	case models.OutcomePromptUpload:
		return "📎 You have no documents yet. Send me a PDF or Word document (DOC/DOCX) to get started."
	case models.OutcomePromptSelection:
		var b strings.Builder
		b.WriteString("📚 Please choose a document to chat with:")
		for i, d := range o.Documents {
			fmt.Fprintf(&b, "\n%d. %s", i+1, d.Name)
		}
		return b.String()
	case models.OutcomeAnswer:
		return o.Text
	case models.OutcomeNoMatch:
		return "❌ No relevant information found in the selected document."
	case models.OutcomeError:
		return "❌ Error processing query: " + o.ErrorMessage()
	default:
		return ""
	}
}

// IngestNotice renders the reply to an upload.
func IngestNotice(doc models.Document, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Document %q processed successfully!\nSelect it to start asking questions.", doc.Name)
	case errors.Is(err, models.ErrUnsupportedFormat):
		return "❌ Unsupported file type. Please send a PDF or Word document (DOC/DOCX)."
	case errors.Is(err, ErrNotIndexed):
		return fmt.Sprintf("⚠️ Document %q was registered but its content could not be indexed, so it is empty. "+
			"Questions about it will find nothing; please upload it again.", doc.Name)
	default:
		return "❌ Error processing document: " + err.Error()
	}
}

// SelectNotice renders the reply to a document selection.
func SelectNotice(doc models.Document, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("💬 Now chatting about %q. Ask me anything, or finish to pick another document.", doc.Name)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotOwner):
		return "❌ That document is not available."
	default:
		return "❌ Error selecting document: " + err.Error()
	}
}

// FinishNotice renders the reply to leaving chat mode.
func FinishNotice() string {
	return "👋 Chat finished. Choose another document whenever you like."
}
