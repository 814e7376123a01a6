package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
chunking:
  chunk_size: 200
  chunk_overlap: 20
embedding:
  provider: mock
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 200 || cfg.Chunking.OverlapOrDefault() != 20 {
		t.Errorf("unexpected chunking config: size=%d overlap=%d", cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("mock provider default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  upload_dir: "./data/uploads"
  inbox_dir: "./inbox"
vector:
  store: sqlite
  path: "./data/vectors.db"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "uploads"); cfg.Storage.UploadDir != want {
		t.Errorf("upload_dir = %s, want %s", cfg.Storage.UploadDir, want)
	}
	if want := filepath.Join(dir, "inbox"); cfg.Storage.InboxDir != want {
		t.Errorf("inbox_dir = %s, want %s", cfg.Storage.InboxDir, want)
	}
	if want := filepath.Join(dir, "data", "vectors.db"); cfg.Vector.Path != want {
		t.Errorf("vector path = %s, want %s", cfg.Vector.Path, want)
	}
}

func TestLoad_onnxVocabBesideModel(t *testing.T) {
	path := writeConfig(t, `
embedding:
  provider: onnx
  model_path: "./models/minilm.onnx"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "models", "minilm.onnx"); cfg.Embedding.ModelPath != want {
		t.Errorf("model_path = %s, want %s", cfg.Embedding.ModelPath, want)
	}
	if want := filepath.Join(dir, "models", "vocab.txt"); cfg.Embedding.VocabPath != want {
		t.Errorf("vocab_path = %s, want %s", cfg.Embedding.VocabPath, want)
	}
	if cfg.Embedding.Dimensions != 384 || cfg.Embedding.MaxTokens != 256 {
		t.Errorf("onnx defaults: dimensions=%d max_tokens=%d", cfg.Embedding.Dimensions, cfg.Embedding.MaxTokens)
	}
}

func TestLoad_invalidChunking(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"overlap equals size", "chunking:\n  chunk_size: 50\n  chunk_overlap: 50\n"},
		{"overlap larger than size", "chunking:\n  chunk_size: 10\n  chunk_overlap: 60\n"},
		{"negative overlap", "chunking:\n  chunk_size: 10\n  chunk_overlap: -1\n"},
		{"negative size", "chunking:\n  chunk_size: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, models.ErrInvalidConfiguration) {
				t.Errorf("Load error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestLoad_zeroOverlapAllowed(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chunking:\n  chunk_size: 10\n  chunk_overlap: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.OverlapOrDefault() != 0 {
		t.Errorf("explicit zero overlap should be kept, got %d", cfg.Chunking.OverlapOrDefault())
	}
}

func TestLoad_unknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, "embedding:\n  provider: word2vec\n"))
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Load error = %v, want ErrInvalidConfiguration", err)
	}
	_, err = Load(writeConfig(t, "vector:\n  store: faiss\n"))
	if !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Errorf("Load error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestLoadOrDefault_missingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.OverlapOrDefault() != 50 {
		t.Errorf("defaults: size=%d overlap=%d", cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	}
	if !filepath.IsAbs(cfg.Storage.UploadDir) {
		t.Errorf("upload dir should be absolute, got %s", cfg.Storage.UploadDir)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes() != 20<<20 {
		t.Errorf("default upload limit: got %d", cfg.Server.MaxUploadBytes())
	}
	if cfg.Embedding.Model != "text-embedding-ada-002" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("embedding defaults: model=%s dims=%d", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	if cfg.Chat.Model != "gpt-4o-mini" || cfg.Chat.MaxTokens != 1000 {
		t.Errorf("chat defaults: model=%s max_tokens=%d", cfg.Chat.Model, cfg.Chat.MaxTokens)
	}
	if cfg.Chat.TemperatureOrDefault() != 0.7 {
		t.Errorf("default temperature: got %f", cfg.Chat.TemperatureOrDefault())
	}
	if cfg.Vector.Store != "sqlite" || cfg.Vector.Path != "./data/vectors.db" {
		t.Errorf("vector defaults: %+v", cfg.Vector)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("default top_k: got %d", cfg.Retrieval.TopK)
	}
	if cfg.Storage.InboxDir != "" {
		t.Error("inbox should be disabled by default")
	}
}

func TestChatConfig_TemperatureOrDefault(t *testing.T) {
	t.Run("nil_returns_default", func(t *testing.T) {
		c := &ChatConfig{}
		if got := c.TemperatureOrDefault(); got != 0.7 {
			t.Errorf("TemperatureOrDefault() = %v, want 0.7", got)
		}
	})
	t.Run("zero_is_kept", func(t *testing.T) {
		var zero float32
		c := &ChatConfig{Temperature: &zero}
		if got := c.TemperatureOrDefault(); got != 0 {
			t.Errorf("TemperatureOrDefault() = %v, want 0", got)
		}
	})
}

func TestAPIKey(t *testing.T) {
	t.Setenv("KOTAE_TEST_KEY", "sk-test")
	e := &EmbeddingConfig{APIKeyEnv: "KOTAE_TEST_KEY"}
	if e.APIKey() != "sk-test" {
		t.Errorf("APIKey = %q", e.APIKey())
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:   ServerConfig{Host: "localhost", Port: 9090},
		Chunking: ChunkingConfig{ChunkSize: 300},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Chunking.ChunkSize != 300 {
		t.Errorf("loaded: port=%d chunk_size=%d", loaded.Server.Port, loaded.Chunking.ChunkSize)
	}
}
