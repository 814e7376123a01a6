// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Vector    VectorConfig    `yaml:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// MaxUploadBytes returns the upload size limit in bytes.
func (s *ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// StorageConfig holds paths for uploaded files.
// InboxDir is optional; when set, files dropped into InboxDir/<user_id>/ are ingested.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	InboxDir  string `yaml:"inbox_dir"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai, onnx, mock
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size"`
	// ONNX only.
	ModelPath string `yaml:"model_path"`
	VocabPath string `yaml:"vocab_path"` // WordPiece vocab.txt shipped with the model
	MaxTokens int    `yaml:"max_tokens"`
}

// Timeout returns the request timeout for the embedding service.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// APIKey reads the API key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// ChatConfig configures the chat-completion model used to generate answers.
type ChatConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// TemperatureOrDefault returns the sampling temperature; defaults to 0.7 when unset.
func (c *ChatConfig) TemperatureOrDefault() float32 {
	if c.Temperature != nil {
		return *c.Temperature
	}
	return defaultTemperature
}

// Timeout returns the request timeout for the chat service.
func (c *ChatConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// APIKey reads the API key from the configured environment variable.
func (c *ChatConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// VectorConfig selects the similarity store backing the vector index.
type VectorConfig struct {
	Store  string       `yaml:"store"` // memory, sqlite, qdrant
	Path   string       `yaml:"path"`  // snapshot file (memory) or database file (sqlite)
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the request timeout for Qdrant.
func (q *QdrantConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSecs) * time.Second
}

// ChunkingConfig holds token-window settings. Overlap must be smaller than size.
type ChunkingConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

// OverlapOrDefault returns the chunk overlap; defaults to 50 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return defaultChunkOverlap
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// Load reads and parses the config file at path, applies defaults, expands paths, and validates.
// Returns an error if the file cannot be read or parsed, or wraps models.ErrInvalidConfiguration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg, filepath.Dir(path))
}

// LoadOrDefault loads path when it exists; otherwise returns defaults resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cwd, cwdErr := os.Getwd()
	if cwdErr != nil {
		cwd = "."
	}
	return finish(&Config{}, cwd)
}

func finish(cfg *Config, configDir string) (*Config, error) {
	ApplyDefaults(cfg)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	if cfg.Storage.InboxDir != "" {
		cfg.Storage.InboxDir = expandPath(cfg.Storage.InboxDir, configDir)
	}
	if cfg.Vector.Path != "" {
		cfg.Vector.Path = expandPath(cfg.Vector.Path, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	} else if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.VocabPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), "vocab.txt")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks chunking, retrieval, and provider settings.
func (c *Config) Validate() error {
	size, overlap := c.Chunking.ChunkSize, c.Chunking.OverlapOrDefault()
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", models.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)", models.ErrInvalidConfiguration, overlap, size)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", models.ErrInvalidConfiguration, c.Retrieval.TopK)
	}
	switch c.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q (supported: openai, onnx, mock)", models.ErrInvalidConfiguration, c.Embedding.Provider)
	}
	switch c.Vector.Store {
	case "memory", "sqlite", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vector store %q (supported: memory, sqlite, qdrant)", models.ErrInvalidConfiguration, c.Vector.Store)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
