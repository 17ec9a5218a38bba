package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// TenantRepository implements the repositories.TenantRepository interface
type TenantRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB, logger *zap.Logger) repositories.TenantRepository {
	return &TenantRepository{
		db:     db,
		logger: logger,
	}
}

const tenantColumns = `id, key, name, api_key_hash, rpm_limit, tpm_limit, monthly_budget, model_combo, aliases, active, created_at, updated_at`

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	aliasesJSON, err := marshalAliases(tenant.Aliases)
	if err != nil {
		return fmt.Errorf("failed to encode tenant aliases: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		tenant.ID,
		tenant.Key,
		tenant.Name,
		nullString(tenant.APIKeyHash),
		tenant.RPMLimit,
		tenant.TPMLimit,
		tenant.MonthlyBudget,
		nullRawMessage(tenant.ModelCombo),
		aliasesJSON,
		tenant.Active,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	r.logger.Debug("tenant created", zap.String("id", tenant.ID.String()), zap.String("key", tenant.Key))
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	tenant, err := r.scanTenant(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// GetByKey retrieves a tenant by its stable key
func (r *TenantRepository) GetByKey(ctx context.Context, key string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE key = $1`

	tenant, err := r.scanTenant(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// GetByAPIKeyHash retrieves a tenant by API key hash
func (r *TenantRepository) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE api_key_hash = $1`

	tenant, err := r.scanTenant(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, apiKeyHash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found for API key")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant, nil
}

// Update updates a tenant
func (r *TenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2,
		    api_key_hash = $3,
		    rpm_limit = $4,
		    tpm_limit = $5,
		    monthly_budget = $6,
		    model_combo = $7,
		    aliases = $8,
		    active = $9,
		    updated_at = $10
		WHERE id = $1
	`

	aliasesJSON, err := marshalAliases(tenant.Aliases)
	if err != nil {
		return fmt.Errorf("failed to encode tenant aliases: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		nullString(tenant.APIKeyHash),
		tenant.RPMLimit,
		tenant.TPMLimit,
		tenant.MonthlyBudget,
		nullRawMessage(tenant.ModelCombo),
		aliasesJSON,
		tenant.Active,
		tenant.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %s", tenant.ID)
	}

	r.logger.Debug("tenant updated", zap.String("id", tenant.ID.String()))
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTenant scans one tenant row, decoding the JSONB columns
func (r *TenantRepository) scanTenant(row rowScanner) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	var (
		apiKeyHash sql.NullString
		comboJSON  []byte
		aliasJSON  []byte
	)

	err := row.Scan(
		&tenant.ID,
		&tenant.Key,
		&tenant.Name,
		&apiKeyHash,
		&tenant.RPMLimit,
		&tenant.TPMLimit,
		&tenant.MonthlyBudget,
		&comboJSON,
		&aliasJSON,
		&tenant.Active,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tenant.APIKeyHash = apiKeyHash.String
	if len(comboJSON) > 0 {
		tenant.ModelCombo = json.RawMessage(comboJSON)
	}
	if len(aliasJSON) > 0 {
		if err := json.Unmarshal(aliasJSON, &tenant.Aliases); err != nil {
			return nil, fmt.Errorf("failed to decode tenant aliases: %w", err)
		}
	}

	return tenant, nil
}

// marshalAliases encodes the alias override map, mapping empty to SQL NULL
func marshalAliases(aliases map[string][]string) (interface{}, error) {
	if len(aliases) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(aliases)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// nullString maps the empty string to SQL NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullRawMessage maps an empty JSON payload to SQL NULL
func nullRawMessage(m json.RawMessage) interface{} {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
