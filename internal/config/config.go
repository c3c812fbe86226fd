package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDSN        = "host=127.0.0.1 user=postgres password=postgres dbname=studyspace port=5432 sslmode=disable"
	defaultRedisURL   = "redis://localhost:6379/0"
	defaultUploadsDir = "./uploads"

	defaultEmbeddingModel = "text-embedding-3-small"
	defaultEmbeddingDims  = 768
	defaultTargetLanguage = "Ukrainian"

	defaultChunkSize      = 1000
	defaultChunkOverlap   = 100
	defaultMinChunkLength = 50
	defaultVectorTopK     = 5
	defaultKeywordTopK    = 10
	defaultFusionK        = 60
	defaultFinalTopN      = 7
	defaultHistoryWindow  = 3
	defaultContextCharCap = 200_000
)

// Load reads the YAML config file, overlays environment variables for
// secrets, and applies defaults. A missing file is not an error: env vars
// and defaults alone are enough to boot in development.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

func applyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")); v != "" {
		cfg.AI.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		cfg.Env = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.DSN == "" {
		cfg.DSN = defaultDSN
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = defaultRedisURL
	}
	if cfg.Uploads.Backend == "" {
		cfg.Uploads.Backend = "local"
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = defaultUploadsDir
	}

	if cfg.AI.Embedding.Model == "" {
		cfg.AI.Embedding.Model = defaultEmbeddingModel
	}
	if cfg.AI.Embedding.Dimensions == 0 {
		cfg.AI.Embedding.Dimensions = defaultEmbeddingDims
	}
	if cfg.AI.TargetLanguage == "" {
		cfg.AI.TargetLanguage = defaultTargetLanguage
	}

	r := &cfg.RAG
	if r.ChunkSize == 0 {
		r.ChunkSize = defaultChunkSize
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = defaultChunkOverlap
	}
	if r.MinChunkLength == 0 {
		r.MinChunkLength = defaultMinChunkLength
	}
	if r.VectorTopK == 0 {
		r.VectorTopK = defaultVectorTopK
	}
	if r.KeywordTopK == 0 {
		r.KeywordTopK = defaultKeywordTopK
	}
	if r.FusionK == 0 {
		r.FusionK = defaultFusionK
	}
	if r.FinalTopN == 0 {
		r.FinalTopN = defaultFinalTopN
	}
	if r.HistoryWindow == 0 {
		r.HistoryWindow = defaultHistoryWindow
	}
	if r.ContextCharCap == 0 {
		r.ContextCharCap = defaultContextCharCap
	}
}

func validate(cfg *AppConfig) error {
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.RAG.ChunkOverlap, cfg.RAG.ChunkSize)
	}
	if cfg.Uploads.Backend != "local" && cfg.Uploads.Backend != "s3" {
		return fmt.Errorf("config: unknown uploads backend %q", cfg.Uploads.Backend)
	}
	if cfg.Uploads.Backend == "s3" && cfg.Uploads.S3.Bucket == "" {
		return fmt.Errorf("config: uploads backend is s3 but no bucket configured")
	}
	return nil
}
