package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the StudyBuddy pipeline service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Pipeline PipelineConfig
	Dispatch DispatchConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
	// InternalTokenHash is the bcrypt hash of the bearer token that
	// dispatchers must present. Empty disables auth outside production.
	InternalTokenHash string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL          string
	JobStatusTTL time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
	Ollama           OllamaConfig
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MiniModel      string
	EmbeddingModel string
}

type AnthropicConfig struct {
	APIKey    string
	Model     string
	MiniModel string
}

type OllamaConfig struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// HasCredentials reports whether the configured provider can reach both a
// generator and an embedder.
func (c AIConfig) HasCredentials() bool {
	switch c.Provider {
	case "openai":
		return c.OpenAI.APIKey != ""
	case "anthropic":
		// Embeddings always go through OpenAI.
		return c.Anthropic.APIKey != "" && c.OpenAI.APIKey != ""
	case "ollama":
		return c.Ollama.BaseURL != ""
	}
	return false
}

type PipelineConfig struct {
	AutoExtractTopics bool
	ChunkTargetTokens int
	EmbedBatchSize    int
	EmbedConcurrency  int
	StageTimeout      time.Duration
}

type DispatchConfig struct {
	Mode           string
	ServiceURL     string
	Stream         string
	Group          string
	InternalToken  string
	MaxDeliveries  int
	VisibilityTime time.Duration

	// RelayMetricsPort serves the relay's /metrics. Zero disables it.
	RelayMetricsPort int
}

type StorageConfig struct {
	LocalRoot    string
	GCSProjectID string
	// GoogleCredentials is either inline service account JSON or a path to
	// a credentials file. Empty falls back to application default credentials.
	GoogleCredentials   string
	DocumentAIProjectID string
	DocumentAILocation  string
	DocumentAIProcessor string
}

// GCSEnabled reports whether gs:// material paths can be read.
func (c StorageConfig) GCSEnabled() bool {
	return c.GCSProjectID != "" || c.GoogleCredentials != ""
}

// DocumentAIEnabled reports whether a Document AI processor is configured.
func (c StorageConfig) DocumentAIEnabled() bool {
	return c.DocumentAIProjectID != "" && c.DocumentAIProcessor != ""
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
}

var validDispatchModes = map[string]bool{
	"http":  true,
	"redis": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("STUDYBUDDY_PORT", 8000),
			Env:               envString("ENVIRONMENT", "development"),
			LogLevel:          envString("LOG_LEVEL", "info"),
			InternalTokenHash: os.Getenv("INTERNAL_TOKEN_HASH"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			JobStatusTTL: envDuration("JOB_STATUS_TTL", 24*time.Hour),
		},
		AI: AIConfig{
			Provider:         envString("LLM_PROVIDER", "openai"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:         os.Getenv("OPENAI_API_KEY"),
				BaseURL:        os.Getenv("OPENAI_BASE_URL"),
				Model:          envString("OPENAI_MODEL", "gpt-4o"),
				MiniModel:      envString("OPENAI_MINI_MODEL", "gpt-4o-mini"),
				EmbeddingModel: envString("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			},
			Anthropic: AnthropicConfig{
				APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
				Model:     envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
				MiniModel: envString("ANTHROPIC_MINI_MODEL", "claude-haiku-4-5-20251001"),
			},
			Ollama: OllamaConfig{
				BaseURL:        envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:          envString("OLLAMA_MODEL", "llama3"),
				EmbeddingModel: envString("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			},
		},
		Pipeline: PipelineConfig{
			AutoExtractTopics: envBool("AUTO_EXTRACT_TOPICS", true),
			ChunkTargetTokens: envInt("CHUNK_TARGET_TOKENS", 800),
			EmbedBatchSize:    envInt("EMBED_BATCH_SIZE", 64),
			EmbedConcurrency:  envInt("EMBED_CONCURRENCY", 4),
			StageTimeout:      envDuration("PIPELINE_STAGE_TIMEOUT", 10*time.Minute),
		},
		Dispatch: DispatchConfig{
			Mode:           envString("DISPATCH_MODE", "http"),
			ServiceURL:     envString("AI_SERVICE_URL", "http://localhost:8000"),
			Stream:         envString("DISPATCH_STREAM", "studybuddy:jobs"),
			Group:          envString("DISPATCH_GROUP", "relay"),
			InternalToken:  os.Getenv("INTERNAL_TOKEN"),
			MaxDeliveries:  envInt("RELAY_MAX_DELIVERIES", 5),
			VisibilityTime: envDuration("RELAY_VISIBILITY_TIMEOUT", 15*time.Minute),

			RelayMetricsPort: envInt("RELAY_METRICS_PORT", 9091),
		},
		Storage: StorageConfig{
			LocalRoot:           envString("LOCAL_STORAGE_ROOT", "."),
			GCSProjectID:        os.Getenv("GCS_PROJECT_ID"),
			GoogleCredentials:   envString("GOOGLE_APPLICATION_CREDENTIALS_JSON", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			DocumentAIProjectID: os.Getenv("DOCUMENTAI_PROJECT_ID"),
			DocumentAILocation:  envString("DOCUMENTAI_LOCATION", "us"),
			DocumentAIProcessor: os.Getenv("DOCUMENTAI_PROCESSOR_ID"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("LLM_PROVIDER must be one of openai, anthropic, ollama; got %q", c.AI.Provider)
	}

	if !validDispatchModes[c.Dispatch.Mode] {
		return fmt.Errorf("DISPATCH_MODE must be one of http, redis; got %q", c.Dispatch.Mode)
	}
	if !strings.HasPrefix(c.Dispatch.ServiceURL, "http://") && !strings.HasPrefix(c.Dispatch.ServiceURL, "https://") {
		return fmt.Errorf("AI_SERVICE_URL must start with http:// or https://, got %q", c.Dispatch.ServiceURL)
	}

	if c.IsProduction() && c.Server.InternalTokenHash == "" {
		return fmt.Errorf("INTERNAL_TOKEN_HASH is required when ENVIRONMENT is production")
	}

	if c.Pipeline.ChunkTargetTokens < 100 {
		return fmt.Errorf("CHUNK_TARGET_TOKENS must be at least 100, got %d", c.Pipeline.ChunkTargetTokens)
	}
	if c.Pipeline.EmbedBatchSize < 1 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.Pipeline.EmbedBatchSize)
	}
	if c.Pipeline.EmbedConcurrency < 1 {
		return fmt.Errorf("EMBED_CONCURRENCY must be positive, got %d", c.Pipeline.EmbedConcurrency)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
