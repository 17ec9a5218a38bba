package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Catalog source backends.
const (
	CatalogSourcePostgres = "postgres"
	CatalogSourceFile     = "file"
)

// Config represents the complete gateway configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Catalog       CatalogConfig
	Routing       RoutingConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds the shared counter/breaker store configuration.
// An empty Addr switches the gateway to in-process stores, which is only
// safe for a single instance.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// AuthConfig holds tenant authentication configuration
type AuthConfig struct {
	// JWTSecret signs/verifies HS256 bearer tokens whose subject is the
	// tenant key. Empty disables JWT auth (API keys only).
	JWTSecret string
	// AdminToken gates the /admin routes.
	AdminToken string
	// TenantCacheSize / TenantCacheTTL bound the API-key lookup cache.
	TenantCacheSize int
	TenantCacheTTL  time.Duration
}

// CatalogConfig selects where provider/alias/model configuration is read from
type CatalogConfig struct {
	Source         string // postgres or file
	FilePath       string
	ReloadInterval time.Duration // 0 disables periodic reload
}

// RoutingConfig holds the defaults for the routing and resilience engine
type RoutingConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	BreakerWindow     int
	BreakerTTL        time.Duration
	DefaultRPM        int
	DefaultTPM        int
	ProviderTimeout   time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			AdminToken:      getEnv("ADMIN_TOKEN", ""),
			TenantCacheSize: getEnvAsInt("TENANT_CACHE_SIZE", 1000),
			TenantCacheTTL:  getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),
		},
		Catalog: CatalogConfig{
			Source:         getEnv("CATALOG_SOURCE", CatalogSourcePostgres),
			FilePath:       getEnv("CATALOG_FILE", "catalog.yaml"),
			ReloadInterval: getEnvAsDuration("CATALOG_RELOAD_INTERVAL", 0),
		},
		Routing: RoutingConfig{
			MaxRetries:        getEnvAsInt("ROUTING_MAX_RETRIES", 2),
			InitialDelay:      getEnvAsDuration("ROUTING_INITIAL_DELAY", 200*time.Millisecond),
			BackoffMultiplier: getEnvAsFloat("ROUTING_BACKOFF_MULTIPLIER", 2.0),
			BreakerWindow:     getEnvAsInt("BREAKER_WINDOW", 3),
			BreakerTTL:        getEnvAsDuration("BREAKER_TTL", 5*time.Minute),
			DefaultRPM:        getEnvAsInt("QUOTA_DEFAULT_RPM", 60),
			DefaultTPM:        getEnvAsInt("QUOTA_DEFAULT_TPM", 100000),
			ProviderTimeout:   getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case CatalogSourcePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case CatalogSourceFile:
		if c.Catalog.FilePath == "" {
			return fmt.Errorf("catalog file path is required when CATALOG_SOURCE=file")
		}
	default:
		return fmt.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	if c.IsProduction() {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required in production: quota and breaker state must be shared across instances")
		}
		if c.Auth.JWTSecret == "" && c.Catalog.Source == CatalogSourceFile {
			return fmt.Errorf("JWT secret is required in production when tenants are not database-backed")
		}
	}

	if c.Routing.BackoffMultiplier <= 0 {
		return fmt.Errorf("backoff multiplier must be positive")
	}
	if c.Routing.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Routing.BreakerWindow < 1 {
		return fmt.Errorf("breaker window must be at least 1")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Enabled reports whether a shared Redis store is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gateway"),
		Password:        getEnv("DB_PASSWORD", "gateway"),
		Database:        getEnv("DB_NAME", "gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
