package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus represents the lifecycle state of a routed request.
type RequestStatus string

const (
	RequestStatusRouting   RequestStatus = "routing"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusRejected  RequestStatus = "rejected" // Rejected before any provider attempt
)

// RequestRecord is the persisted outcome of one gateway request: which model
// was asked for, where it was routed, what it consumed and how it ended.
type RequestRecord struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	TenantID  uuid.UUID     `json:"tenant_id" db:"tenant_id"`
	RequestID string        `json:"request_id" db:"request_id"` // External request ID
	Status    RequestStatus `json:"status" db:"status"`

	// Routing outcome
	ModelRequested string `json:"model_requested" db:"model_requested"`
	ModelResolved  string `json:"model_resolved" db:"model_resolved"`
	Provider       string `json:"provider" db:"provider"`
	HTTPStatus     int    `json:"http_status" db:"http_status"`

	// Usage metrics
	PromptTokens     int             `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens" db:"total_tokens"`
	Cost             decimal.Decimal `json:"cost" db:"cost"`
	LatencyMs        int             `json:"latency_ms" db:"latency_ms"`

	// Error handling
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TableName returns the table name for the RequestRecord model.
func (RequestRecord) TableName() string {
	return "request_records"
}

// NewRequestRecord creates a new RequestRecord in the routing state.
func NewRequestRecord(tenantID uuid.UUID, requestID, modelRequested string) *RequestRecord {
	return &RequestRecord{
		ID:             uuid.New(),
		TenantID:       tenantID,
		RequestID:      requestID,
		Status:         RequestStatusRouting,
		ModelRequested: modelRequested,
		CreatedAt:      time.Now(),
	}
}

// MarkCompleted records a successful upstream response.
func (r *RequestRecord) MarkCompleted(provider, modelResolved string, promptTokens, completionTokens, latencyMs int, cost decimal.Decimal) {
	r.Status = RequestStatusCompleted
	r.Provider = provider
	r.ModelResolved = modelResolved
	r.HTTPStatus = 200
	r.PromptTokens = promptTokens
	r.CompletionTokens = completionTokens
	r.TotalTokens = promptTokens + completionTokens
	r.LatencyMs = latencyMs
	r.Cost = cost
	now := time.Now()
	r.CompletedAt = &now
}

// MarkFailed records a request that was attempted but never succeeded.
func (r *RequestRecord) MarkFailed(errorCode, errorMessage string, httpStatus, latencyMs int) {
	r.Status = RequestStatusFailed
	r.ErrorCode = &errorCode
	r.ErrorMessage = &errorMessage
	r.HTTPStatus = httpStatus
	r.LatencyMs = latencyMs
	now := time.Now()
	r.CompletedAt = &now
}

// MarkRejected records a request denied before any provider attempt
// (quota, budget, or resolution failure).
func (r *RequestRecord) MarkRejected(errorCode, reason string, httpStatus int) {
	r.Status = RequestStatusRejected
	r.ErrorCode = &errorCode
	r.ErrorMessage = &reason
	r.HTTPStatus = httpStatus
	now := time.Now()
	r.CompletedAt = &now
}
