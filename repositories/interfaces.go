package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

// TransactionManager manages database transactions following the GrantPulse
// pattern. The open transaction travels in the context handed to fn; any
// repository method called with that context routes its queries through it.
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// CatalogRepository reads the routing catalog: providers, canonical models
// and global aliases. The catalog service snapshots these at load time, so
// the repository only needs list operations.
type CatalogRepository interface {
	// ListProviders retrieves all provider configurations, including disabled ones
	ListProviders(ctx context.Context) ([]*models.ProviderConfig, error)

	// ListCanonicalModels retrieves all canonical model definitions
	ListCanonicalModels(ctx context.Context) ([]*models.CanonicalModelConfig, error)

	// ListAliases retrieves all global alias definitions
	ListAliases(ctx context.Context) ([]*models.AliasConfig, error)
}

// TenantRepository handles tenant data operations
type TenantRepository interface {
	// Create creates a new tenant
	Create(ctx context.Context, tenant *models.Tenant) error

	// GetByID retrieves a tenant by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	// GetByKey retrieves a tenant by its stable key
	GetByKey(ctx context.Context, key string) (*models.Tenant, error)

	// GetByAPIKeyHash retrieves a tenant by API key hash
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*models.Tenant, error)

	// Update updates a tenant
	Update(ctx context.Context, tenant *models.Tenant) error
}

// RequestLogRepository handles per-request gateway records
type RequestLogRepository interface {
	// Insert inserts a new request record
	Insert(ctx context.Context, rec *models.RequestRecord) error

	// Update updates a request record after completion or failure
	Update(ctx context.Context, rec *models.RequestRecord) error

	// GetByRequestID retrieves a request record by external request ID
	GetByRequestID(ctx context.Context, requestID string) (*models.RequestRecord, error)

	// ListByTenant retrieves request records for a tenant with pagination
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.RequestRecord, error)

	// MonthlySpend sums completed request cost for a tenant since the given time
	MonthlySpend(ctx context.Context, tenantID uuid.UUID, since time.Time) (decimal.Decimal, error)

	// GetMetrics retrieves aggregate metrics for a tenant within a date range
	GetMetrics(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (*RequestMetrics, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByTenantID retrieves audit logs for a tenant with pagination
	GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)

	// GetByRequestID retrieves audit logs by request ID
	GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type
	GetByAction(ctx context.Context, tenantID uuid.UUID, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)
}

// RequestMetrics represents aggregated gateway metrics
type RequestMetrics struct {
	TotalRequests     int     `json:"total_requests"`
	CompletedRequests int     `json:"completed_requests"`
	FailedRequests    int     `json:"failed_requests"`
	RejectedRequests  int     `json:"rejected_requests"`
	TotalTokens       int     `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Catalog     CatalogRepository
	Tenants     TenantRepository
	RequestLogs RequestLogRepository
	AuditLogs   AuditRepository
}
