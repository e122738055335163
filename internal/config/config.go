package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

// Config is built once at startup and passed by reference; it is never
// mutated afterwards.
type Config struct {
	// Ingestion pipeline
	QueueCapacity     int `envconfig:"QUEUE_CAPACITY" default:"100"`
	WorkerCount       int `envconfig:"WORKER_COUNT" default:"2"`
	ComputeSlots      int `envconfig:"COMPUTE_SLOTS" default:"2"`
	OCRTimeoutSeconds int `envconfig:"OCR_TIMEOUT_SECONDS" default:"30"`

	// Embedding
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDim   int    `envconfig:"EMBEDDING_DIM" default:"768"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`

	// Retrieval
	SearchTopK int `envconfig:"SEARCH_TOP_K" default:"10"`

	// Vector store
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Postgres (legacy message archive + extraction dead letters)
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"chatlens"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"chatlens"`

	// NSQ (inbound chat events)
	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EventTopic   string `envconfig:"EVENT_TOPIC" default:"chat.events"`
	EventChannel string `envconfig:"EVENT_CHANNEL" default:"ingest"`
	EnableEvents bool   `envconfig:"ENABLE_EVENTS" default:"true"`

	// OCR
	TesseractPath string `envconfig:"TESSERACT_PATH" default:"tesseract"`
	TessdataPath  string `envconfig:"TESSDATA_PATH" default:""`
	OCRLanguages  string `envconfig:"OCR_LANGUAGES" default:"ukr+rus+eng"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	ShutdownGraceSeconds       int `envconfig:"SHUTDOWN_GRACE_SECONDS" default:"15"`
	StoreRetryAttempts         int `envconfig:"STORE_RETRY_ATTEMPTS" default:"3"`
	StoreRetryBaseMillis       int `envconfig:"STORE_RETRY_BASE_MILLIS" default:"200"`
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may also come from the shell, so a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: QUEUE_CAPACITY must be positive", ErrMissingRequired)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: WORKER_COUNT must be positive", ErrMissingRequired)
	}
	if c.ComputeSlots <= 0 {
		return fmt.Errorf("%w: COMPUTE_SLOTS must be positive", ErrMissingRequired)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIM must be positive", ErrMissingRequired)
	}
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	return nil
}
