// Package extract converts uploaded documents into normalized, Markdown-flavoured text.
package extract

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Format is the closed set of document formats the extractor accepts.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatDOC
	FormatDOCX
)

// Supported MIME types.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOC  = "application/msword"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// SupportedMIMETypes lists the accepted MIME types in display order.
var SupportedMIMETypes = []string{MIMEPDF, MIMEDOC, MIMEDOCX}

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOC:
		return "doc"
	case FormatDOCX:
		return "docx"
	default:
		return "unknown"
	}
}

// MIMEType returns the canonical MIME type for f.
func (f Format) MIMEType() string {
	switch f {
	case FormatPDF:
		return MIMEPDF
	case FormatDOC:
		return MIMEDOC
	case FormatDOCX:
		return MIMEDOCX
	default:
		return "application/octet-stream"
	}
}

// ParseFormat maps a declared MIME type to a Format. Parameters and case are ignored.
// Any type outside the supported set returns models.ErrUnsupportedFormat.
func ParseFormat(mimeType string) (Format, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	switch mt {
	case MIMEPDF:
		return FormatPDF, nil
	case MIMEDOC:
		return FormatDOC, nil
	case MIMEDOCX:
		return FormatDOCX, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, mimeType)
	}
}

// MIMETypeFromFilename guesses a MIME type from the file extension.
// Unknown extensions yield "application/octet-stream".
func MIMETypeFromFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MIMEPDF
	case ".doc":
		return MIMEDOC
	case ".docx":
		return MIMEDOCX
	}
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// FormatFromFilename is ParseFormat applied to MIMETypeFromFilename.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(MIMETypeFromFilename(name))
}

// Extractor extracts normalized text from document files.
type Extractor struct {
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Extract reads the file at path and returns its normalized text.
// The declared MIME type is checked before the file is opened.
// Read and parse failures wrap models.ErrExtraction.
func (e *Extractor) Extract(path, declaredMIME string) (string, error) {
	format, err := ParseFormat(declaredMIME)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read file: %w", models.ErrExtraction, err)
	}
	e.logger.Debug("extracting document",
		zap.String("path", path),
		zap.String("format", format.String()),
		zap.Int("bytes", len(content)),
	)
	return e.ExtractBytes(content, format)
}

// ExtractBytes extracts normalized text from content of the given format.
func (e *Extractor) ExtractBytes(content []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(content)
	case FormatDOCX:
		text, err = extractDOCX(content)
	case FormatDOC:
		text, err = extractDOC(content)
	default:
		return "", fmt.Errorf("%w: format %s", models.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	return Normalize(text), nil
}
