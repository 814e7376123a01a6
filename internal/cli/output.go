// Package cli renders kotae replies for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects how replies are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// Write encodes v as indented JSON, or prints text for OutputText.
func Write(w io.Writer, format OutputFormat, v any, text string) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// FormatDocuments lists documents one per line, marking the active one.
func FormatDocuments(docs []models.Document, activeID string) string {
	if len(docs) == 0 {
		return "No documents."
	}
	var b strings.Builder
	for i, d := range docs {
		marker := " "
		if d.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %d. %s  (%s, %d chunks, uploaded %s)\n",
			marker, i+1, utils.Truncate(d.Name, 60), d.ID, d.ChunkCount, d.UploadTime.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus renders service counters.
func FormatStatus(st models.Status) string {
	return fmt.Sprintf("Documents:    %d\nSessions:     %d\nVectors:      %d\nUpload usage: %s",
		st.Documents, st.Sessions, st.Vectors, FormatBytes(st.UploadBytes))
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ResolveDocument finds a document by id, by 1-based list position, or by exact name.
func ResolveDocument(docs []models.Document, ref string) (models.Document, bool) {
	ref = strings.TrimSpace(ref)
	for _, d := range docs {
		if d.ID == ref {
			return d, true
		}
	}
	var pos int
	if _, err := fmt.Sscanf(ref, "%d", &pos); err == nil && fmt.Sprint(pos) == ref && pos >= 1 && pos <= len(docs) {
		return docs[pos-1], true
	}
	for _, d := range docs {
		if d.Name == ref {
			return d, true
		}
	}
	return models.Document{}, false
}
