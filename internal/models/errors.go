package models

import "errors"

// Failure modes shared across components. Callers match them with errors.Is;
// components wrap the underlying cause alongside the sentinel.
var (
	// ErrInvalidConfiguration reports bad chunking or provider settings. Fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUnsupportedFormat rejects an upload before any processing.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtraction reports a corrupt or unreadable document.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbeddingService reports an embedding transport or quota failure.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrGeneration reports a chat-completion transport or quota failure.
	ErrGeneration = errors.New("generation error")
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner reports a document that belongs to another user.
	ErrNotOwner = errors.New("document not owned by user")
	// ErrInvalidScope reports a vector query without both scope filters.
	ErrInvalidScope = errors.New("query scope requires user and document")
)
