package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of routing decision being audited.
type AuditAction string

const (
	AuditActionRouteSuccess  AuditAction = "route_success"
	AuditActionRouteFailure  AuditAction = "route_failure"
	AuditActionQuotaBlock    AuditAction = "quota_block"
	AuditActionBudgetBlock   AuditAction = "budget_block"
	AuditActionCatalogReload AuditAction = "catalog_reload"
	AuditActionBreakerReset  AuditAction = "breaker_reset"
)

// AuditLog represents an audit trail entry for a routing decision.
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	TenantID  uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	Action    AuditAction     `json:"action" db:"action"`
	Details   json.RawMessage `json:"details" db:"details"` // JSONB for flexible metadata
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`

	// Routing-specific fields
	Model        *string  `json:"model,omitempty" db:"model"`
	Provider     *string  `json:"provider,omitempty" db:"provider"`
	TokensUsed   *int     `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost         *float64 `json:"cost,omitempty" db:"cost"`
	LatencyMs    *int     `json:"latency_ms,omitempty" db:"latency_ms"`
	StatusCode   *int     `json:"status_code,omitempty" db:"status_code"`
	ErrorMessage *string  `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuditLog model.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance.
func NewAuditLog(tenantID uuid.UUID, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// WithDetails sets the details payload.
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata.
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithRouting sets the routed model and provider.
func (a *AuditLog) WithRouting(model, provider string) *AuditLog {
	a.Model = &model
	a.Provider = &provider
	return a
}

// WithUsage sets usage metrics.
func (a *AuditLog) WithUsage(tokensUsed, latencyMs int, cost float64) *AuditLog {
	a.TokensUsed = &tokensUsed
	a.LatencyMs = &latencyMs
	a.Cost = &cost
	return a
}

// WithError sets error information.
func (a *AuditLog) WithError(statusCode int, errorMessage string) *AuditLog {
	a.StatusCode = &statusCode
	a.ErrorMessage = &errorMessage
	return a
}
