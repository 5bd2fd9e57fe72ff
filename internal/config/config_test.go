package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SpasZahariev/rag-pulled/internal/config"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_ProviderDefaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "reference-deterministic", cfg.DocumentStructurerProvider)
	assert.Equal(t, "reference-deterministic", cfg.EmbeddingProvider)
	assert.False(t, cfg.EnableNSQ)
}

func TestLoadConfig_StructurerAndWorkerOverrides(t *testing.T) {
	os.Setenv("DOCUMENT_STRUCTURER_PROVIDER", "remote-http")
	os.Setenv("STRUCTURER_API_KEY", "test-key")
	os.Setenv("INGESTION_WORKER_POLL_MS", "500")
	os.Setenv("INGESTION_STALE_CLAIM_MS", "120000")
	defer os.Unsetenv("DOCUMENT_STRUCTURER_PROVIDER")
	defer os.Unsetenv("STRUCTURER_API_KEY")
	defer os.Unsetenv("INGESTION_WORKER_POLL_MS")
	defer os.Unsetenv("INGESTION_STALE_CLAIM_MS")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "remote-http", cfg.DocumentStructurerProvider)
	assert.Equal(t, "test-key", cfg.StructurerAPIKey)
	assert.Equal(t, 500, cfg.IngestionWorkerPollMs)
	assert.Equal(t, 120000, cfg.IngestionStaleClaimMs)
}
