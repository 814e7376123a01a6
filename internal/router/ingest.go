package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
)

// Upload describes a file received from a user. MIMEType may be empty, in which
// case it is guessed from FileName.
type Upload struct {
	UserID   string
	FileName string
	MIMEType string
	// Path is a local file holding the upload's bytes.
	Path string
}

// ErrNotIndexed reports a document that was registered but whose vectors could
// not be written. The document stays listed with no searchable content.
var ErrNotIndexed = errors.New("document registered without indexed content")

// Ingest stores, extracts, chunks, and indexes an upload, then registers it.
// Unsupported formats are rejected before anything is stored or embedded.
func (r *Router) Ingest(ctx context.Context, up Upload) (doc models.Document, err error) {
	mimeType := up.MIMEType
	if mimeType == "" {
		mimeType = extract.MIMETypeFromFilename(up.FileName)
	}
	format, err := extract.ParseFormat(mimeType)
	if err != nil {
		r.logger.Warn("unsupported upload rejected",
			zap.String("user_id", up.UserID),
			zap.String("file_name", up.FileName),
			zap.String("mime_type", mimeType),
		)
		return models.Document{}, err
	}
	if up.UserID == "" {
		return models.Document{}, fmt.Errorf("%w: upload without user", models.ErrInvalidScope)
	}

	unlock := r.lockUser(up.UserID)
	defer unlock()

	started := time.Now()
	docID := r.newID()
	log := r.logger.With(zap.String("user_id", up.UserID), zap.String("document_id", docID))

	path, err := r.deps.Uploads.SaveFile(up.UserID, docID, up.FileName, up.Path)
	if err != nil {
		return models.Document{}, fmt.Errorf("store upload: %w", err)
	}
	log.Info("upload stored", zap.String("path", path), zap.String("format", format.String()))
	registered := false
	defer func() {
		if err != nil && !registered {
			if rmErr := os.Remove(path); rmErr != nil {
				log.Warn("failed to remove rejected upload", zap.Error(rmErr))
			}
		}
	}()

	text, err := r.deps.Extractor.Extract(path, format.MIMEType())
	if err != nil {
		log.Error("extraction failed", zap.Error(err))
		return models.Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("document has no extractable text")
		return models.Document{}, fmt.Errorf("%w: no text in %s", models.ErrExtraction, up.FileName)
	}

	chunks, err := r.deps.Chunker.Chunk(text)
	if err != nil {
		return models.Document{}, fmt.Errorf("chunk document: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	log.Info("document chunked", zap.Int("chunks", len(chunks)), zap.Int("chars", len(text)))

	batch, err := r.deps.Index.Prepare(ctx, texts, up.UserID, docID)
	if err != nil {
		log.Error("embedding failed", zap.Error(err))
		return models.Document{}, err
	}

	doc = r.deps.Registry.RegisterDocument(models.Document{
		ID:         docID,
		Name:       up.FileName,
		OwnerID:    up.UserID,
		MIMEType:   format.MIMEType(),
		ChunkCount: len(chunks),
	})
	registered = true

	if _, err := r.deps.Index.Commit(ctx, batch); err != nil {
		log.Error("index write failed", zap.Error(err))
		return doc, fmt.Errorf("%w: %w", ErrNotIndexed, err)
	}
	log.Info("document ingested",
		zap.String("name", doc.Name),
		zap.Duration("elapsed", time.Since(started)),
	)
	return doc, nil
}
