package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const auditLogColumns = `id, tenant_id, action, details, ip_address, user_agent, request_id, timestamp,
		model, provider, tokens_used, cost, latency_ms, status_code, error_message`

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.Action,
		nullRawMessage(log.Details),
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
		log.Model,
		log.Provider,
		log.TokensUsed,
		log.Cost,
		log.LatencyMs,
		log.StatusCode,
		log.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByTenantID retrieves audit logs for a tenant with pagination
func (r *AuditRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryAuditLogs(ctx, query, tenantID, limit, offset)
}

// GetByRequestID retrieves audit logs by request ID
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE request_id = $1
		ORDER BY timestamp DESC
	`

	return r.queryAuditLogs(ctx, query, requestID)
}

// GetByAction retrieves audit logs by action type
func (r *AuditRepository) GetByAction(ctx context.Context, tenantID uuid.UUID, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT ` + auditLogColumns + `
		FROM audit_logs
		WHERE tenant_id = $1 AND action = $2
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4
	`

	return r.queryAuditLogs(ctx, query, tenantID, action, limit, offset)
}

// queryAuditLogs is a helper method to query multiple audit logs
func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.Action,
			&log.Details,
			&log.IPAddress,
			&log.UserAgent,
			&log.RequestID,
			&log.Timestamp,
			&log.Model,
			&log.Provider,
			&log.TokensUsed,
			&log.Cost,
			&log.LatencyMs,
			&log.StatusCode,
			&log.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
