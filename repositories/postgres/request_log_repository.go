package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// RequestLogRepository implements the repositories.RequestLogRepository interface
type RequestLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *DB, logger *zap.Logger) repositories.RequestLogRepository {
	return &RequestLogRepository{
		db:     db,
		logger: logger,
	}
}

const requestRecordColumns = `id, tenant_id, request_id, status, model_requested, model_resolved, provider,
		http_status, prompt_tokens, completion_tokens, total_tokens, cost, latency_ms,
		error_code, error_message, created_at, completed_at`

// Insert inserts a new request record
func (r *RequestLogRepository) Insert(ctx context.Context, rec *models.RequestRecord) error {
	query := `
		INSERT INTO request_records (` + requestRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.RequestID,
		rec.Status,
		rec.ModelRequested,
		rec.ModelResolved,
		rec.Provider,
		rec.HTTPStatus,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.Cost,
		rec.LatencyMs,
		rec.ErrorCode,
		rec.ErrorMessage,
		rec.CreatedAt,
		rec.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}

	r.logger.Debug("request record inserted",
		zap.String("id", rec.ID.String()),
		zap.String("request_id", rec.RequestID))
	return nil
}

// Update updates a request record after completion or failure
func (r *RequestLogRepository) Update(ctx context.Context, rec *models.RequestRecord) error {
	query := `
		UPDATE request_records
		SET status = $2,
		    model_resolved = $3,
		    provider = $4,
		    http_status = $5,
		    prompt_tokens = $6,
		    completion_tokens = $7,
		    total_tokens = $8,
		    cost = $9,
		    latency_ms = $10,
		    error_code = $11,
		    error_message = $12,
		    completed_at = $13
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		rec.ID,
		rec.Status,
		rec.ModelResolved,
		rec.Provider,
		rec.HTTPStatus,
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.Cost,
		rec.LatencyMs,
		rec.ErrorCode,
		rec.ErrorMessage,
		rec.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update request record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("request record not found: %s", rec.ID)
	}

	r.logger.Debug("request record updated", zap.String("id", rec.ID.String()))
	return nil
}

// GetByRequestID retrieves a request record by external request ID
func (r *RequestLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.RequestRecord, error) {
	query := `SELECT ` + requestRecordColumns + ` FROM request_records WHERE request_id = $1`

	executor := GetExecutor(ctx, r.db)
	rec := &models.RequestRecord{}

	err := executor.QueryRowContext(ctx, query, requestID).Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.RequestID,
		&rec.Status,
		&rec.ModelRequested,
		&rec.ModelResolved,
		&rec.Provider,
		&rec.HTTPStatus,
		&rec.PromptTokens,
		&rec.CompletionTokens,
		&rec.TotalTokens,
		&rec.Cost,
		&rec.LatencyMs,
		&rec.ErrorCode,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("request record not found: %s", requestID)
		}
		return nil, fmt.Errorf("failed to get request record: %w", err)
	}

	return rec, nil
}

// ListByTenant retrieves request records for a tenant with pagination
func (r *RequestLogRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.RequestRecord, error) {
	query := `
		SELECT ` + requestRecordColumns + `
		FROM request_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query request records: %w", err)
	}
	defer rows.Close()

	var records []*models.RequestRecord
	for rows.Next() {
		rec := &models.RequestRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.RequestID,
			&rec.Status,
			&rec.ModelRequested,
			&rec.ModelResolved,
			&rec.Provider,
			&rec.HTTPStatus,
			&rec.PromptTokens,
			&rec.CompletionTokens,
			&rec.TotalTokens,
			&rec.Cost,
			&rec.LatencyMs,
			&rec.ErrorCode,
			&rec.ErrorMessage,
			&rec.CreatedAt,
			&rec.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request record rows: %w", err)
	}

	return records, nil
}

// MonthlySpend sums completed request cost for a tenant since the given time
func (r *RequestLogRepository) MonthlySpend(ctx context.Context, tenantID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(cost), 0)
		FROM request_records
		WHERE tenant_id = $1 AND status = 'completed' AND created_at >= $2
	`

	executor := GetExecutor(ctx, r.db)
	var spend decimal.Decimal

	if err := executor.QueryRowContext(ctx, query, tenantID, since).Scan(&spend); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum tenant spend: %w", err)
	}

	return spend, nil
}

// GetMetrics retrieves aggregate metrics for a tenant within a date range
func (r *RequestLogRepository) GetMetrics(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (*repositories.RequestMetrics, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) as completed_requests,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_requests,
			COUNT(CASE WHEN status = 'rejected' THEN 1 END) as rejected_requests,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(cost), 0) as total_cost,
			COALESCE(AVG(latency_ms), 0) as avg_latency_ms
		FROM request_records
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
	`

	executor := GetExecutor(ctx, r.db)
	metrics := &repositories.RequestMetrics{}

	err := executor.QueryRowContext(ctx, query, tenantID, start, end).Scan(
		&metrics.TotalRequests,
		&metrics.CompletedRequests,
		&metrics.FailedRequests,
		&metrics.RejectedRequests,
		&metrics.TotalTokens,
		&metrics.TotalCost,
		&metrics.AvgLatencyMs,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	return metrics, nil
}
