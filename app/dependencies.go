package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/config"
	"github.com/rudironsoni/Synaxis-sub005/middleware"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
	"github.com/rudironsoni/Synaxis-sub005/repositories/file"
	"github.com/rudironsoni/Synaxis-sub005/repositories/postgres"
	"github.com/rudironsoni/Synaxis-sub005/services/audit"
	"github.com/rudironsoni/Synaxis-sub005/services/breaker"
	"github.com/rudironsoni/Synaxis-sub005/services/budget"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
	"github.com/rudironsoni/Synaxis-sub005/services/orchestrator"
	"github.com/rudironsoni/Synaxis-sub005/services/providers"
	openaiprovider "github.com/rudironsoni/Synaxis-sub005/services/providers/openai"
	"github.com/rudironsoni/Synaxis-sub005/services/quota"
	"github.com/rudironsoni/Synaxis-sub005/services/resolver"
	"github.com/rudironsoni/Synaxis-sub005/services/routing"
)

// quotaWindow is the fixed admission window: RPM and TPM limits are per
// minute by definition.
const quotaWindow = time.Minute

// Dependencies holds all application dependencies following the GrantPulse
// pattern. This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Redis  *redis.Client // nil when no shared store is configured

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos *repositories.Repositories

	// Services
	Catalog      *catalog.Service
	Resolver     *resolver.Service
	Breaker      *breaker.Breaker
	Quota        *quota.Tracker
	Routing      *routing.Service
	Registry     *providers.Registry
	Budget       *budget.Service
	Audit        *audit.Service
	Orchestrator *orchestrator.Service

	// Auth
	TenantAuth  *middleware.TenantAuth
	TenantCache *middleware.TenantCache
	AdminAuth   func(http.Handler) http.Handler

	// stopCh terminates the background workers on shutdown.
	stopCh chan struct{}
}

// NewDependencies creates and wires up all application dependencies.
// This follows the GrantPulse pattern of centralized dependency injection.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		stopCh: make(chan struct{}),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRedis(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := deps.initCatalog(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	if err := deps.initRouting(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize routing: %w", err)
	}

	deps.initAuth(cfg)
	deps.startWorkers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection and repositories.
// Tenants, request records and audit logs always live in Postgres; only
// the catalog may come from a file instead.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB().DB
	d.Repos = factory.NewRepositories()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initRedis connects the shared quota/breaker store. Without it the gateway
// falls back to in-process counters, which only behave correctly for a
// single instance.
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		d.Logger.Warn("redis not configured, using in-process quota and breaker stores")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	return nil
}

// initCatalog selects the catalog backend and performs the initial load.
// A bad catalog at boot fails startup outright; reload failures later on
// keep the previous snapshot instead.
func (d *Dependencies) initCatalog(ctx context.Context, cfg *config.Config) error {
	var repo repositories.CatalogRepository
	switch cfg.Catalog.Source {
	case config.CatalogSourceFile:
		repo = file.NewCatalogStore(cfg.Catalog.FilePath, d.Logger)
	default:
		repo = d.Repos.Catalog
	}

	d.Catalog = catalog.NewService(repo, d.Logger)
	if err := d.Catalog.Reload(ctx); err != nil {
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	d.Resolver = resolver.NewService(d.Catalog, d.Logger)
	return nil
}

// initRouting wires the admission and failover engine.
func (d *Dependencies) initRouting(cfg *config.Config) error {
	var breakerStore breaker.StateStore
	var quotaStore quota.CounterStore
	if d.Redis != nil {
		breakerStore = breaker.NewRedisStore(d.Redis, cfg.Routing.BreakerTTL)
		quotaStore = quota.NewRedisStore(d.Redis, quotaWindow)
	} else {
		breakerStore = breaker.NewMemoryStore(cfg.Routing.BreakerTTL)
		quotaStore = quota.NewMemoryStore(quotaWindow)
	}

	d.Breaker = breaker.New(breakerStore, cfg.Routing.BreakerWindow, d.Logger)
	d.Quota = quota.NewTracker(quotaStore, d.Logger)
	d.Routing = routing.NewService(d.Breaker, d.Quota, d.Logger)
	d.Registry = providers.NewRegistry(openaiprovider.Build, cfg.Routing.ProviderTimeout, d.Logger)
	d.Budget = budget.NewService(d.Repos.RequestLogs, d.Logger)

	d.Audit = audit.NewService(d.Repos.AuditLogs, d.Logger, audit.DefaultConfig())
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Orchestrator = orchestrator.NewService(
		d.Catalog,
		d.Resolver,
		d.Routing,
		d.Registry,
		d.Breaker,
		d.Quota,
		d.Budget,
		d.Audit,
		d.Repos.RequestLogs,
		orchestrator.Config{
			MaxRetries:        cfg.Routing.MaxRetries,
			InitialDelay:      cfg.Routing.InitialDelay,
			BackoffMultiplier: cfg.Routing.BackoffMultiplier,
			DefaultRPM:        cfg.Routing.DefaultRPM,
			DefaultTPM:        cfg.Routing.DefaultTPM,
		},
		d.Logger,
	)

	return nil
}

// initAuth wires tenant credential checking for the /v1 surface and the
// token gate for /admin.
func (d *Dependencies) initAuth(cfg *config.Config) {
	d.TenantCache = middleware.NewTenantCache(cfg.Auth.TenantCacheSize, cfg.Auth.TenantCacheTTL)
	d.TenantAuth = middleware.NewTenantAuth(d.Repos.Tenants, d.TenantCache, cfg.Auth.JWTSecret, d.Logger)
	d.AdminAuth = middleware.AdminAuth(cfg.Auth.AdminToken, d.Logger)

	if cfg.Auth.AdminToken == "" {
		d.Logger.Warn("admin token not configured, /admin routes disabled")
	}
}

// startWorkers launches the periodic background jobs.
func (d *Dependencies) startWorkers(cfg *config.Config) {
	d.Catalog.StartReloadWorker(cfg.Catalog.ReloadInterval, d.stopCh)
	if ttl := cfg.Auth.TenantCacheTTL; ttl > 0 {
		go d.TenantCache.StartCleanupWorker(ttl, d.stopCh)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs *multierror.Error

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}

	// Drain queued audit events before the database goes away.
	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout < 0 {
			timeout = 0
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errs.ErrorOrNil()
}
