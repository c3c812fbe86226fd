package config

// AppConfig holds runtime configuration loaded once at startup.
type AppConfig struct {
	Port           int           `yaml:"port"`
	Env            string        `yaml:"env"` // "development" | "production"
	DSN            string        `yaml:"dsn"` // PostgreSQL DSN
	RedisURL       string        `yaml:"redis_url"`
	JWTSecret      string        `yaml:"jwt_secret"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Uploads        UploadsConfig `yaml:"uploads"`
	AI             AIConfig      `yaml:"ai"`
	RAG            RAGConfig     `yaml:"rag"`
}

// UploadsConfig controls where uploaded documents are stored.
type UploadsConfig struct {
	Backend string   `yaml:"backend"` // "local" | "s3"
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

// AIConfig configures generation providers and the embedding service.
type AIConfig struct {
	Providers       []AIProvider       `yaml:"providers"`
	GenerationModel *AIModelAssignment `yaml:"generation_model"`
	Embedding       EmbeddingConfig    `yaml:"embedding"`
	TargetLanguage  string             `yaml:"target_language"`
}

type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// EmbeddingConfig configures the external embedding service. Model and
// dimensionality are fixed for the life of the deployment: stored chunk
// vectors must match the query vector dimensionality.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// RAGConfig carries retrieval and ingestion tunables.
type RAGConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	MinChunkLength  int `yaml:"min_chunk_length"`
	VectorTopK      int `yaml:"vector_top_k"`
	KeywordTopK     int `yaml:"keyword_top_k"`
	FusionK         int `yaml:"fusion_k"`
	FinalTopN       int `yaml:"final_top_n"`
	HistoryWindow   int `yaml:"history_window"`
	ContextCharCap  int `yaml:"context_char_cap"`
}
