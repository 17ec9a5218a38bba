package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Provider configurations
		CREATE TABLE IF NOT EXISTS providers (
			name VARCHAR(100) PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT true,
			tier INTEGER NOT NULL DEFAULT 0,
			cost_per_token DOUBLE PRECISION NOT NULL DEFAULT 0,
			free_tier BOOLEAN NOT NULL DEFAULT false,
			base_url TEXT NOT NULL,
			api_key_env VARCHAR(100),
			models JSONB NOT NULL DEFAULT '[]',
			capabilities JSONB NOT NULL DEFAULT '[]',
			requests_per_minute INTEGER NOT NULL DEFAULT 0,
			timeout_seconds INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Per-model pricing overrides
		CREATE TABLE IF NOT EXISTS model_costs (
			provider VARCHAR(100) NOT NULL REFERENCES providers(name) ON DELETE CASCADE,
			model_path VARCHAR(255) NOT NULL,
			input_per_token DOUBLE PRECISION NOT NULL DEFAULT 0,
			output_per_token DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (provider, model_path)
		);

		-- Canonical model definitions
		CREATE TABLE IF NOT EXISTS canonical_models (
			name VARCHAR(255) PRIMARY KEY,
			capabilities JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Provider backends serving a canonical model
		CREATE TABLE IF NOT EXISTS canonical_model_backends (
			canonical_name VARCHAR(255) NOT NULL REFERENCES canonical_models(name) ON DELETE CASCADE,
			provider VARCHAR(100) NOT NULL,
			model_path VARCHAR(255) NOT NULL,
			PRIMARY KEY (canonical_name, provider, model_path)
		);

		-- Global alias definitions; targets is an ordered JSON array
		CREATE TABLE IF NOT EXISTS model_aliases (
			name VARCHAR(255) PRIMARY KEY,
			targets JSONB NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Tenants table
		CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			key VARCHAR(100) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			api_key_hash VARCHAR(255) UNIQUE,
			rpm_limit INTEGER NOT NULL DEFAULT 0,
			tpm_limit INTEGER NOT NULL DEFAULT 0,
			monthly_budget DECIMAL(12, 4) NOT NULL DEFAULT 0,
			model_combo JSONB,
			aliases JSONB,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Per-request gateway records
		CREATE TABLE IF NOT EXISTS request_records (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			request_id VARCHAR(255) NOT NULL UNIQUE,
			status VARCHAR(50) NOT NULL,
			model_requested VARCHAR(255) NOT NULL,
			model_resolved VARCHAR(255) NOT NULL DEFAULT '',
			provider VARCHAR(100) NOT NULL DEFAULT '',
			http_status INTEGER NOT NULL DEFAULT 0,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost DECIMAL(14, 8) NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			error_code VARCHAR(100),
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		);

		-- Audit logs table
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			action VARCHAR(100) NOT NULL,
			details JSONB,
			ip_address VARCHAR(45),
			user_agent TEXT,
			request_id VARCHAR(255),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			model VARCHAR(255),
			provider VARCHAR(100),
			tokens_used INTEGER,
			cost DECIMAL(14, 8),
			latency_ms INTEGER,
			status_code INTEGER,
			error_message TEXT
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_providers_enabled ON providers(enabled);

		CREATE INDEX IF NOT EXISTS idx_backends_provider ON canonical_model_backends(provider);

		CREATE INDEX IF NOT EXISTS idx_tenants_key ON tenants(key);
		CREATE INDEX IF NOT EXISTS idx_tenants_api_key_hash ON tenants(api_key_hash);

		CREATE INDEX IF NOT EXISTS idx_request_records_tenant_id ON request_records(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_request_records_status ON request_records(status);
		CREATE INDEX IF NOT EXISTS idx_request_records_created_at ON request_records(created_at);
		CREATE INDEX IF NOT EXISTS idx_request_records_request_id ON request_records(request_id);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_id ON audit_logs(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_request_id ON audit_logs(request_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
