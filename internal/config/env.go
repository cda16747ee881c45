package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/docchat/internal/core"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	SslCertPath string `yaml:"ssl_cert_path"`
	DbBackend   string `yaml:"db_backend"`

	AIProvider      string `yaml:"ai_provider"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	EmbedModel      string `yaml:"embed_model"`
	EmbedDim        int    `yaml:"embed_dim"`
	EmbedBatchSize  int    `yaml:"embed_batch_size"`
	ChatModel       string `yaml:"chat_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`

	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	RetrievalTopK    int `yaml:"retrieval_top_k"`
	MemoryMaxTokens  int `yaml:"memory_max_tokens"`
	ContextMaxTokens int `yaml:"context_max_tokens"`

	StorageBackend string `yaml:"storage_backend"`
	UploadDir      string `yaml:"upload_dir"`
	AwsAccessKey   string `yaml:"aws_access_key"`
	AwsSecretKey   string `yaml:"aws_secret_key"`
	AwsRegion      string `yaml:"aws_region"`
	BucketName     string `yaml:"bucket_name"`

	QueueBackend  string   `yaml:"queue_backend"`
	RedisURL      string   `yaml:"redis_url"`
	RedisQueueKey string   `yaml:"redis_queue_key"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
	KafkaGroupID  string   `yaml:"kafka_group_id"`
	IngestMode    string   `yaml:"ingest_mode"`
	Workers       int      `yaml:"workers"`
	Extractor     string   `yaml:"extractor"`

	DefaultUserID string   `yaml:"default_user_id"`
	CORSOrigins   []string `yaml:"cors_origins"`
	LogLevel      string   `yaml:"log_level"`
	Port          string   `yaml:"port"`
}

// LoadConfig reads .env (if present), then an optional YAML file named by
// CONFIG_FILE, then the process environment. Later sources win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := baseDefaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults is the full default configuration for the openai provider.
func Defaults() *Config {
	cfg := baseDefaults()
	cfg.applyProviderDefaults()
	return cfg
}

// baseDefaults leaves the model fields empty so that a provider chosen later
// by file or environment gets its own models.
func baseDefaults() *Config {
	return &Config{
		DbBackend:        "postgres",
		AIProvider:       "openai",
		EmbedBatchSize:   100,
		MaxOutputTokens:  1000,
		ChunkSize:        512,
		ChunkOverlap:     50,
		RetrievalTopK:    5,
		MemoryMaxTokens:  2000,
		ContextMaxTokens: 3000,
		StorageBackend:   "local",
		UploadDir:        "uploads",
		AwsRegion:        "us-east-2",
		BucketName:       "docchat-docs",
		QueueBackend:     "memory",
		RedisQueueKey:    "docchat:ingest",
		KafkaTopic:       "docchat-ingest",
		KafkaGroupID:     "docchat-workers",
		IngestMode:       "background",
		Workers:          2,
		Extractor:        "native",
		DefaultUserID:    "user_01",
		CORSOrigins:      []string{"*"},
		LogLevel:         "info",
		Port:             "8080",
	}
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", core.ErrInvalidConfiguration, path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("%w: parse %s: %w", core.ErrInvalidConfiguration, path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SslCertPath = getEnv("SSL_CERT_PATH", c.SslCertPath)
	c.DbBackend = getEnv("DB_BACKEND", c.DbBackend)

	c.AIProvider = getEnv("AI_PROVIDER", c.AIProvider)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.EmbedModel = getEnv("EMBED_MODEL", c.EmbedModel)
	c.EmbedDim = getEnvInt("EMBED_DIM", c.EmbedDim)
	c.EmbedBatchSize = getEnvInt("EMBED_BATCH_SIZE", c.EmbedBatchSize)
	c.ChatModel = getEnv("CHAT_MODEL", c.ChatModel)
	c.MaxOutputTokens = getEnvInt("MAX_OUTPUT_TOKENS", c.MaxOutputTokens)

	c.ChunkSize = getEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.RetrievalTopK = getEnvInt("RETRIEVAL_TOP_K", c.RetrievalTopK)
	c.MemoryMaxTokens = getEnvInt("MEMORY_MAX_TOKENS", c.MemoryMaxTokens)
	c.ContextMaxTokens = getEnvInt("CONTEXT_MAX_TOKENS", c.ContextMaxTokens)

	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)
	c.AwsAccessKey = getEnv("AWS_ACCESS_KEY", c.AwsAccessKey)
	c.AwsSecretKey = getEnv("AWS_SECRET_KEY", c.AwsSecretKey)
	c.AwsRegion = getEnv("AWS_REGION", c.AwsRegion)
	c.BucketName = getEnv("BUCKET_NAME", c.BucketName)

	c.QueueBackend = getEnv("QUEUE_BACKEND", c.QueueBackend)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisQueueKey = getEnv("REDIS_QUEUE_KEY", c.RedisQueueKey)
	c.KafkaBrokers = getEnvList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.KafkaGroupID = getEnv("KAFKA_GROUP_ID", c.KafkaGroupID)
	c.IngestMode = getEnv("INGEST_MODE", c.IngestMode)
	c.Workers = getEnvInt("WORKERS", c.Workers)
	c.Extractor = getEnv("EXTRACTOR", c.Extractor)

	c.DefaultUserID = getEnv("DEFAULT_USER_ID", c.DefaultUserID)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Port = getEnv("PORT", c.Port)
}

// Validate reports every problem at once; each wraps core.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrInvalidConfiguration}, args...)...))
	}

	switch c.DbBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			bad("DATABASE_URL not set")
		}
	case "memory":
	default:
		bad("DB_BACKEND must be postgres or memory, got %q", c.DbBackend)
	}

	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			bad("OPENAI_API_KEY not set")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			bad("GEMINI_API_KEY not set")
		}
	default:
		bad("AI_PROVIDER must be openai or gemini, got %q", c.AIProvider)
	}

	if c.EmbedDim <= 0 {
		bad("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	for _, msg := range c.modelProblems() {
		bad("%s", msg)
	}
	if c.EmbedBatchSize <= 0 {
		bad("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize)
	}
	if c.ChunkSize <= 0 {
		bad("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		bad("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.RetrievalTopK < 0 {
		bad("RETRIEVAL_TOP_K must not be negative, got %d", c.RetrievalTopK)
	}
	if c.MemoryMaxTokens < 0 || c.ContextMaxTokens < 0 {
		bad("token budgets must not be negative")
	}
	if c.MaxOutputTokens <= 0 {
		bad("MAX_OUTPUT_TOKENS must be positive, got %d", c.MaxOutputTokens)
	}

	switch c.StorageBackend {
	case "local":
		if c.UploadDir == "" {
			bad("UPLOAD_DIR not set")
		}
	case "s3":
		if c.BucketName == "" {
			bad("BUCKET_NAME not set")
		}
	default:
		bad("STORAGE_BACKEND must be local or s3, got %q", c.StorageBackend)
	}

	switch c.QueueBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			bad("REDIS_URL not set")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			bad("KAFKA_BROKERS and KAFKA_TOPIC must be set")
		}
	default:
		bad("QUEUE_BACKEND must be memory, redis or kafka, got %q", c.QueueBackend)
	}

	if c.IngestMode != "background" && c.IngestMode != "inline" {
		bad("INGEST_MODE must be background or inline, got %q", c.IngestMode)
	}
	if c.Workers < 0 {
		bad("WORKERS must not be negative, got %d", c.Workers)
	}
	if c.IngestMode == "background" && c.QueueBackend == "memory" && c.Workers == 0 {
		bad("WORKERS must be positive for background ingestion on the memory queue")
	}
	if c.Extractor != "native" && c.Extractor != "docconv" {
		bad("EXTRACTOR must be native or docconv, got %q", c.Extractor)
	}
	if c.DefaultUserID == "" {
		bad("DEFAULT_USER_ID not set")
	}

	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("%s=%q not an int, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
