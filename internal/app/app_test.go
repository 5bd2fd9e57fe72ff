package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/SpasZahariev/rag-pulled/internal/app"
	"github.com/SpasZahariev/rag-pulled/internal/config"
)

func TestNew_WiresHealthRoute(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		ServerPort:                 8081,
		DocumentStructurerProvider: "reference-deterministic",
		EmbeddingProvider:          "reference-deterministic",
	}

	a, err := app.New(cfg, &app.Dependencies{DB: db})
	require.NoError(t, err)
	require.NotNil(t, a)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_EnqueueRouteRequiresBody(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{ServerPort: 8081}
	a, err := app.New(cfg, &app.Dependencies{DB: db})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
