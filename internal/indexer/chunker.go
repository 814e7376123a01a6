// Package indexer splits documents into token windows and indexes them per user and document.
package indexer

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into overlapping token windows.
type Chunker struct {
	tokenizer    Tokenizer
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in tokens).
// Returns models.ErrInvalidConfiguration unless 0 <= overlap < size.
func NewChunker(tok Tokenizer, chunkSize, chunkOverlap int) (*Chunker, error) {
	if err := validateWindow(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &Chunker{
		tokenizer:    tok,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Chunk splits text using the chunker's settings.
func (c *Chunker) Chunk(text string) ([]models.Chunk, error) {
	return Split(c.tokenizer, text, c.chunkSize, c.chunkOverlap)
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", models.ErrInvalidConfiguration, overlap, size)
	}
	return nil
}

// Split tokenizes text and returns windows of size tokens advancing by size-overlap.
// The last window may be shorter. Empty text yields nil.
func Split(tok Tokenizer, text string, size, overlap int) ([]models.Chunk, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	tokens, err := tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	step := size - overlap
	chunks := make([]models.Chunk, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		window := tokens[start:end]
		chunkText, err := tok.Decode(window)
		if err != nil {
			return nil, fmt.Errorf("decode window at %d: %w", start, err)
		}
		chunks = append(chunks, models.Chunk{
			Text:       chunkText,
			TokenCount: len(window),
			Tokens:     append([]int(nil), window...),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
