package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// pointNamespace derives stable Qdrant point ids from record ids.
var pointNamespace = uuid.MustParse("6f0f4a52-3b1d-4a57-9a0c-2f8f0c7c1e11")

// QdrantConfig holds connection settings for QdrantStore.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantStore is a minimal REST client to Qdrant. The collection uses cosine
// distance and is created on open when missing.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, dimensions int) (*QdrantStore, error) {
	if dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(s.collection), suffix)
}

func (s *QdrantStore) init(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimensions,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	for _, field := range []string{"user_id", "document_id"} {
		index := map[string]any{"field_name": field, "field_schema": "keyword"}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	return nil
}

// PointID returns the Qdrant point id for a record id.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Add upserts records as points with their scope in the payload.
func (s *QdrantStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Vector), s.dimensions)
		}
		points[i] = map[string]any{
			"id":     PointID(r.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				"record_id":   r.ID,
				"user_id":     r.Scope.UserID,
				"document_id": r.Scope.DocumentID,
				"text":        r.Text,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func qdrantFilter(f Filter) map[string]any {
	must := make([]map[string]any, 0, 2)
	if f.UserID != "" {
		must = append(must, map[string]any{"key": "user_id", "match": map[string]any{"value": f.UserID}})
	}
	if f.DocumentID != "" {
		must = append(must, map[string]any{"key": "document_id", "match": map[string]any{"value": f.DocumentID}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// Search returns the top-k points within filter, highest score first.
func (s *QdrantStore) Search(ctx context.Context, query []float32, filter Filter, k int) ([]Match, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		var m Match
		m.Score = r.Score
		if v, ok := r.Payload["record_id"].(string); ok {
			m.ID = v
		}
		if v, ok := r.Payload["user_id"].(string); ok {
			m.Scope.UserID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			m.Scope.DocumentID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			m.Text = v
		}
		out = append(out, m)
	}
	return out, nil
}

// Count returns the exact number of points within filter.
func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	req := map[string]any{"exact": true}
	if f := qdrantFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Size returns the total number of points, or 0 if the count fails.
func (s *QdrantStore) Size() int {
	n, err := s.Count(context.Background(), Filter{})
	if err != nil {
		return 0
	}
	return n
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) do(ctx context.Context, method, endpoint string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
