package embedding

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperjump/kotae/internal/models"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	maxWordPieceChars = 100
	continuationMark  = "##"
)

// WordPieceTokenizer is the uncased BERT tokenizer used by sentence-transformers
// models such as all-MiniLM-L6-v2. IDs come from the model's vocab.txt.
type WordPieceTokenizer struct {
	vocab              map[string]int64
	cls, sep, pad, unk int64
}

// LoadWordPieceVocab reads a vocab.txt file: one token per line, ID = line number.
func LoadWordPieceVocab(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open vocab: %w", models.ErrInvalidConfiguration, err)
	}
	defer f.Close()
	return NewWordPieceTokenizer(f)
}

// NewWordPieceTokenizer builds a tokenizer from vocab.txt content.
func NewWordPieceTokenizer(r io.Reader) (*WordPieceTokenizer, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	var id int64
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read vocab: %w", models.ErrInvalidConfiguration, err)
	}
	t := &WordPieceTokenizer{vocab: vocab}
	for name, dst := range map[string]*int64{"[CLS]": &t.cls, "[SEP]": &t.sep, "[PAD]": &t.pad, "[UNK]": &t.unk} {
		v, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("%w: vocab has no %s token", models.ErrInvalidConfiguration, name)
		}
		*dst = v
	}
	return t, nil
}

// Tokenize produces [CLS] pieces... [SEP] padded with [PAD] to maxTokens.
// Text beyond maxTokens-2 pieces is truncated.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.pad
	}

	inputIDs[0] = t.cls
	attentionMask[0] = 1
	pos := 1
words:
	for _, word := range basicTokens(text) {
		for _, id := range t.pieces(word) {
			if pos >= maxTokens-1 {
				break words
			}
			inputIDs[pos] = id
			attentionMask[pos] = 1
			pos++
		}
	}
	inputIDs[pos] = t.sep
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// pieces splits word greedily into the longest vocabulary prefixes.
func (t *WordPieceTokenizer) pieces(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordPieceChars {
		return []int64{t.unk}
	}
	var ids []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		found := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = continuationMark + sub
			}
			if id, ok := t.vocab[sub]; ok {
				ids = append(ids, id)
				found = true
				break
			}
		}
		if !found {
			return []int64{t.unk}
		}
		start = end
	}
	return ids
}

// basicTokens lowercases, strips accents, and splits on whitespace and punctuation.
// Punctuation and CJK characters become tokens of their own.
func basicTokens(text string) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case unicode.Is(unicode.Mn, r), r == 0, r == unicode.ReplacementChar, unicode.IsControl(r) && !unicode.IsSpace(r):
		case unicode.IsSpace(r):
			flush()
		case isPunct(r) || unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isPunct(r rune) bool {
	if r >= 33 && r <= 47 || r >= 58 && r <= 64 || r >= 91 && r <= 96 || r >= 123 && r <= 126 {
		return true
	}
	return unicode.IsPunct(r)
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// HashString returns a deterministic 32-bit FNV-1a hash of s.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
