package config

const (
	defaultTemperature  float32 = 0.7
	defaultChunkOverlap         = 50
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 20
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/uploads"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "openai" {
			cfg.Embedding.Dimensions = 1536
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 20
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Provider == "onnx" {
		if cfg.Embedding.ModelPath == "" {
			cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
		}
		if cfg.Embedding.MaxTokens == 0 {
			cfg.Embedding.MaxTokens = 256
		}
	}
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-4o-mini"
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = 1000
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 60
	}
	if cfg.Vector.Store == "" {
		cfg.Vector.Store = "sqlite"
	}
	if cfg.Vector.Path == "" {
		switch cfg.Vector.Store {
		case "sqlite":
			cfg.Vector.Path = "./data/vectors.db"
		case "memory":
			cfg.Vector.Path = "./data/vectors.snapshot"
		}
	}
	if cfg.Vector.Qdrant.URL == "" {
		cfg.Vector.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "documents"
	}
	if cfg.Vector.Qdrant.TimeoutSecs == 0 {
		cfg.Vector.Qdrant.TimeoutSecs = 15
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
}
