package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/rudironsoni/Synaxis-sub005/app"
	"github.com/rudironsoni/Synaxis-sub005/config"
	"github.com/rudironsoni/Synaxis-sub005/middleware"
	"github.com/rudironsoni/Synaxis-sub005/repositories/file"
	"github.com/rudironsoni/Synaxis-sub005/routes"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
)

func TestInitLogger(t *testing.T) {
	t.Run("json production logger", func(t *testing.T) {
		logger, err := initLogger(config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("text console logger", func(t *testing.T) {
		logger, err := initLogger(config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console format accepted", func(t *testing.T) {
		logger, err := initLogger(config.ObservabilityConfig{LogLevel: "warn", LogFormat: "console"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync()

		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("invalid log level", func(t *testing.T) {
		logger, err := initLogger(config.ObservabilityConfig{LogLevel: "shouting", LogFormat: "json"})
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestGatewayEndpoints(t *testing.T) {
	ts := httptest.NewServer(newGatewayHandler(t))
	defer ts.Close()

	testCases := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
	}{
		{"chat completion unauthenticated", "POST", "/v1/chat/completions", "", http.StatusUnauthorized},
		{"list models unauthenticated", "GET", "/v1/models", "", http.StatusUnauthorized},
		{"catalog reload without token", "POST", "/admin/catalog/reload", "", http.StatusUnauthorized},
		{"catalog reload with wrong token", "POST", "/admin/catalog/reload", "wrong-token", http.StatusForbidden},
		{"list providers without token", "GET", "/admin/providers", "", http.StatusUnauthorized},
		{"breaker reset without token", "POST", "/admin/providers/groq/breaker/reset", "", http.StatusUnauthorized},
		{"unknown route", "GET", "/v1/nonexistent", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := httptest.NewServer(newGatewayHandler(t))
	defer ts.Close()

	t.Run("health check returns healthy", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data := decodeData(t, resp.Body)
		assert.Equal(t, "healthy", data["status"])
	})

	t.Run("readiness with loaded catalog and no optional stores", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data := decodeData(t, resp.Body)
		assert.Equal(t, "healthy", data["status"])

		checks, ok := data["checks"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "healthy", checks["catalog"])
		assert.NotContains(t, checks, "database")
		assert.NotContains(t, checks, "redis")
	})
}

func TestCORSPreflight(t *testing.T) {
	ts := httptest.NewServer(newGatewayHandler(t))
	defer ts.Close()

	req, err := http.NewRequest("OPTIONS", ts.URL+"/v1/chat/completions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// Test helpers

// newGatewayHandler wires the route tree with a file-backed catalog and no
// database, which is enough surface for auth, health and CORS behavior.
func newGatewayHandler(t *testing.T) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)
	store := file.NewCatalogStore(writeCatalogFile(t), logger)
	cat := catalog.NewService(store, logger)
	require.NoError(t, cat.Reload(context.Background()))

	cache := middleware.NewTenantCache(10, time.Minute)
	deps := &app.Dependencies{
		Config:      &config.Config{Environment: "test"},
		Logger:      logger,
		Catalog:     cat,
		TenantCache: cache,
		TenantAuth:  middleware.NewTenantAuth(nil, cache, "", logger),
		AdminAuth:   middleware.AdminAuth("test-admin-token", logger),
	}

	return routes.SetupRoutes(deps)
}

func writeCatalogFile(t *testing.T) string {
	t.Helper()

	doc := `providers:
  - name: groq
    free_tier: true
    tier: 1
    base_url: https://api.groq.com/openai/v1
    api_key_env: GROQ_API_KEY
    models:
      - llama-3.1-8b-instant
    capabilities:
      - chat
      - streaming

canonical_models:
  - name: test-model
    capabilities:
      - chat
    backends:
      - provider: groq
        model_path: llama-3.1-8b-instant

aliases:
  - name: smart
    targets:
      - test-model
`

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func decodeData(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()

	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	return envelope.Data
}
