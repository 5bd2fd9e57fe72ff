package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SpasZahariev/rag-pulled/internal/app"
	"github.com/SpasZahariev/rag-pulled/internal/config"
	"github.com/SpasZahariev/rag-pulled/internal/testutils"
)

// TestSmoke_Startup boots the full binary-equivalent wiring (Bootstrap +
// New + Run) against a real Postgres container and checks the health
// endpoint comes up, the way a deploy's readiness probe would.
func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := &config.Config{
		DBHost:                     suite.DBHost,
		DBPort:                     suite.DBPort,
		DBUser:                     suite.DBUser,
		DBPass:                     suite.DBPass,
		DBName:                     suite.DBName,
		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
		MigrationPath:              "file://migrations",
		ServerPort:                 18081,
		DocumentStructurerProvider: "reference-deterministic",
		EmbeddingProvider:          "reference-deterministic",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := app.Bootstrap(ctx, cfg)
	require.NoError(t, err)

	a, err := app.New(cfg, deps)
	require.NoError(t, err)

	go func() {
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:18081/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 200*time.Millisecond)
}
