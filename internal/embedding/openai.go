package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// maxBatchInputs caps how many texts go into one /embeddings request.
const maxBatchInputs = 96

// OpenAIConfig configures the OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimensions        int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. Failures are
// not retried; every error wraps models.ErrEmbeddingService.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithLogger sets a logger for request debugging.
func WithLogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.client = c }
}

// NewOpenAIEmbedder creates an embeddings client.
func NewOpenAIEmbedder(cfg OpenAIConfig, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing embedding API key", models.ErrInvalidConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", models.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-ada-002"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	e := &OpenAIEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: t},
		limiter:    rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e, nil
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in as few requests as possible, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchInputs {
		end := min(start+maxBatchInputs, len(texts))
		vecs, err := e.request(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (e *OpenAIEmbedder) request(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", models.ErrEmbeddingService, err)
	}
	data, err := json.Marshal(embeddingsRequest{Model: e.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", models.ErrEmbeddingService, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", models.ErrEmbeddingService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", models.ErrEmbeddingService, err)
	}
	e.logger.Debug("embedding request",
		zap.Int("inputs", len(inputs)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	var out embeddingsResponse
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode >= 300 {
		msg := resp.Status
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg += ": " + out.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", models.ErrEmbeddingService, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %w", models.ErrEmbeddingService, decodeErr)
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", models.ErrEmbeddingService, len(out.Data), len(inputs))
	}
	vecs := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(inputs) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad embedding index %d", models.ErrEmbeddingService, d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, expected %d", models.ErrEmbeddingService, len(d.Embedding), e.dimensions)
		}
		vecs[d.Index] = utils.ToFloat32(d.Embedding)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
