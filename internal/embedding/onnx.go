//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"last_hidden_state"}
)

// ONNXEmbedder runs a sentence-transformers model exported to ONNX and mean-pools
// its token states. It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	ids        *ort.Tensor[int64]
	mask       *ort.Tensor[int64]
	types      *ort.Tensor[int64]
	hidden     *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath and the WordPiece vocabulary at
// vocabPath. dimensions is the model's hidden size.
func NewONNXEmbedder(modelPath, vocabPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if dimensions <= 0 || maxTokens <= 2 {
		return nil, fmt.Errorf("%w: onnx embedder needs positive dimensions and max_tokens above 2", models.ErrInvalidConfiguration)
	}
	tokenizer, err := LoadWordPieceVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize ONNX runtime: %w", models.ErrEmbeddingService, err)
		}
	}

	e := &ONNXEmbedder{tokenizer: tokenizer, dimensions: dimensions, maxTokens: maxTokens}
	seq := ort.NewShape(1, int64(maxTokens))
	if e.ids, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return nil, e.fail("input_ids tensor", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return nil, e.fail("attention_mask tensor", err)
	}
	if e.types, err = ort.NewEmptyTensor[int64](seq); err != nil {
		return nil, e.fail("token_type_ids tensor", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions))); err != nil {
		return nil, e.fail("output tensor", err)
	}
	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputNames, onnxOutputNames,
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		return nil, e.fail("session", err)
	}
	return e, nil
}

func (e *ONNXEmbedder) fail(what string, err error) error {
	_ = e.Close()
	return fmt.Errorf("%w: create ONNX %s: %w", models.ErrInvalidConfiguration, what, err)
}

// Embed runs the model on text and returns the unit-length mean of the unmasked token states.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.ids.GetData(), ids)
	copy(e.mask.GetData(), mask)
	copy(e.types.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %w", models.ErrEmbeddingService, err)
	}
	out := meanPool(e.hidden.GetData(), mask, e.dimensions)
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.ids, e.mask, e.types} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
	}
	e.ids, e.mask, e.types, e.hidden = nil, nil, nil, nil
	return err
}
