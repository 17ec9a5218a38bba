package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rudironsoni/Synaxis-sub005/config"
	"github.com/rudironsoni/Synaxis-sub005/repositories/postgres"
)

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Logger)
		assert.Nil(t, deps.Redis, "redis should stay nil when no address is configured")

		// Verify repositories
		require.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.Repos.Tenants)
		assert.NotNil(t, deps.Repos.RequestLogs)
		assert.NotNil(t, deps.Repos.AuditLogs)

		// Verify services
		require.NotNil(t, deps.Catalog)
		assert.True(t, deps.Catalog.Loaded(), "catalog should be loaded at boot")
		assert.NotNil(t, deps.Resolver)
		assert.NotNil(t, deps.Breaker)
		assert.NotNil(t, deps.Quota)
		assert.NotNil(t, deps.Routing)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.Budget)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Orchestrator)

		// Verify auth
		assert.NotNil(t, deps.TenantAuth)
		assert.NotNil(t, deps.TenantCache)
		assert.NotNil(t, deps.AdminAuth)

		// Cleanup
		err = deps.Close(ctx)
		assert.NoError(t, err)
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("unreachable redis fails startup", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		// Configured-but-unreachable redis is a boot error, not a silent
		// fallback to in-process stores.
		cfg.Redis.Addr = "127.0.0.1:1"
		cfg.Redis.DialTimeout = 500 * time.Millisecond

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize redis")
	})

	t.Run("missing catalog file fails startup", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Catalog.FilePath = filepath.Join(t.TempDir(), "missing.yaml")
		logger := zaptest.NewLogger(t)

		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize catalog")
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Close should succeed
		err = deps.Close(ctx)
		assert.NoError(t, err)

		// Second close may error (audit already stopped) but must not panic
		_ = deps.Close(ctx)
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "gateway"),
			Password:        getEnvOrDefault("DB_PASSWORD", "gateway"),
			Database:        getEnvOrDefault("DB_NAME", "gateway_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			AdminToken:      "test-admin-token",
			TenantCacheSize: 100,
			TenantCacheTTL:  time.Minute,
		},
		Catalog: config.CatalogConfig{
			Source:   config.CatalogSourceFile,
			FilePath: writeCatalogFile(t),
		},
		Routing: config.RoutingConfig{
			MaxRetries:        2,
			InitialDelay:      200 * time.Millisecond,
			BackoffMultiplier: 2.0,
			BreakerWindow:     3,
			BreakerTTL:        5 * time.Minute,
			DefaultRPM:        60,
			DefaultTPM:        100000,
			ProviderTimeout:   60 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

// writeCatalogFile writes a minimal valid catalog so boot does not depend on
// catalog tables existing in the test database.
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
    requests_per_minute: 30

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

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	logger := zap.NewNop()
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
