// Package models defines core data structures for documents, chunks, sessions, and router outcomes.
package models

import "time"

// Document is the registry entry for an ingested file.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	UploadTime time.Time `json:"upload_time"`
	MIMEType   string    `json:"mime_type,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
}

// Chunk is a contiguous token window of a document's normalized text.
type Chunk struct {
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	// Tokens holds the window's token ids.
	Tokens []int `json:"-"`
}

// Scope restricts which indexed vectors a query may see.
type Scope struct {
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
}

// IndexedVector is a chunk embedding stored in the vector index.
type IndexedVector struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"-"`
	Text   string    `json:"text"`
	Scope  Scope     `json:"scope"`
}
