package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func fakeEmbeddings(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusUnauthorized)
			return
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var b strings.Builder
		b.WriteString(`{"data":[`)
		// Reverse order to check index handling.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]string, dims)
			for j := range vec {
				vec[j] = "0"
			}
			vec[i%dims] = "1"
			fmt.Fprintf(&b, `{"index":%d,"embedding":[%s]}`, i, strings.Join(vec, ","))
			if i > 0 {
				b.WriteString(",")
			}
		}
		b.WriteString(`]}`)
		_, _ = w.Write([]byte(b.String()))
	}))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := fakeEmbeddings(t, 3)
	defer srv.Close()
	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test", Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if v[i] != 1 {
			t.Errorf("vec %d = %v", i, v)
		}
	}

	v, err := e.Embed(context.Background(), "single")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || v[0] != 1 {
		t.Errorf("Embed = %v", v)
	}
}

func TestOpenAIEmbedder_errors(t *testing.T) {
	srv := fakeEmbeddings(t, 3)
	defer srv.Close()

	tests := []struct {
		name string
		cfg  OpenAIConfig
	}{
		{"unauthorized", OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-wrong", Dimensions: 3}},
		{"dimension mismatch", OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Dimensions: 5}},
		{"unreachable", OpenAIConfig{BaseURL: "http://127.0.0.1:1", APIKey: "sk-test", Dimensions: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewOpenAIEmbedder(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			_, err = e.Embed(context.Background(), "hello")
			if !errors.Is(err, models.ErrEmbeddingService) {
				t.Errorf("err = %v, want ErrEmbeddingService", err)
			}
		})
	}
}

func TestOpenAIEmbedder_quota(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()
	e, _ := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Dimensions: 3})
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, models.ErrEmbeddingService) || !strings.Contains(err.Error(), "quota") {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestNewOpenAIEmbedder_missingKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Dimensions: 3})
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("err = %v", err)
	}
}
