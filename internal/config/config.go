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

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"ingestion"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"ingestion"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableNSQ  bool   `envconfig:"ENABLE_NSQ" default:"false"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort int    `envconfig:"SERVER_PORT" default:"8081"`
	UploadRoot string `envconfig:"INGESTION_UPLOAD_ROOT" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`

	// Ingestion pipeline (spec.md §6.5)
	DocumentStructurerProvider string  `envconfig:"DOCUMENT_STRUCTURER_PROVIDER" default:"reference-deterministic"`
	EmbeddingProvider          string  `envconfig:"EMBEDDING_PROVIDER" default:"reference-deterministic"`
	StructurerModelBaseURL     string  `envconfig:"STRUCTURER_MODEL_BASE_URL"`
	StructurerModelName        string  `envconfig:"STRUCTURER_MODEL_NAME"`
	StructurerTemperature      float32 `envconfig:"STRUCTURER_TEMPERATURE" default:"0.2"`
	StructurerNumCtx           int     `envconfig:"STRUCTURER_NUM_CTX" default:"0"`
	StructurerMaxTokens        int     `envconfig:"STRUCTURER_MAX_TOKENS" default:"0"`
	StructurerAPIKey           string  `envconfig:"STRUCTURER_API_KEY"`
	EmbedderModelBaseURL       string  `envconfig:"EMBEDDER_MODEL_BASE_URL"`
	EmbedderModelName          string  `envconfig:"EMBEDDER_MODEL_NAME"`
	EmbedderAPIKey             string  `envconfig:"EMBEDDER_API_KEY"`

	IngestionWorkerPollMs          int `envconfig:"INGESTION_WORKER_POLL_MS" default:"2000"`
	IngestionWorkerDBWaitTimeoutMs int `envconfig:"INGESTION_WORKER_DB_WAIT_TIMEOUT_MS" default:"30000"`
	IngestionWorkerDBWaitPollMs    int `envconfig:"INGESTION_WORKER_DB_WAIT_POLL_MS" default:"500"`
	IngestionStaleClaimMs          int `envconfig:"INGESTION_STALE_CLAIM_MS" default:"0"`
	IngestionStaleClaimSweepMs     int `envconfig:"INGESTION_STALE_CLAIM_SWEEP_MS" default:"60000"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root. Ignore errors, as
	// env vars might be set by the shell/orchestrator instead.
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
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	return nil
}
