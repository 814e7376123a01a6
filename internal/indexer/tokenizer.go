package indexer

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/hyperjump/kotae/internal/models"
)

// Tokenizer converts text to token ids and back.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// BPETokenizer wraps a tiktoken codec.
type BPETokenizer struct {
	codec tokenizer.Codec
}

// NewCL100KTokenizer returns the cl100k_base tokenizer used by OpenAI embedding models.
func NewCL100KTokenizer() (*BPETokenizer, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("%w: load cl100k_base: %w", models.ErrInvalidConfiguration, err)
	}
	return &BPETokenizer{codec: codec}, nil
}

// Encode returns the token ids of text.
func (t *BPETokenizer) Encode(text string) ([]int, error) {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out, nil
}

// Decode returns the text for token ids.
func (t *BPETokenizer) Decode(tokens []int) (string, error) {
	ids := make([]uint, len(tokens))
	for i, id := range tokens {
		ids[i] = uint(id)
	}
	return t.codec.Decode(ids)
}
