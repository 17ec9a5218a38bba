package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

func decodeOpenAIError(t *testing.T, w *httptest.ResponseRecorder) utils.OpenAIErrorDetail {
	t.Helper()
	var resp utils.OpenAIErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   string
		expectedCode   string
	}{
		{
			name:           "validation error",
			err:            services.ErrMissingModel,
			expectedStatus: http.StatusBadRequest,
			expectedType:   "invalid_request_error",
			expectedCode:   "validation",
		},
		{
			name:           "not found error",
			err:            services.ErrTenantNotFound,
			expectedStatus: http.StatusNotFound,
			expectedType:   "invalid_request_error",
			expectedCode:   "not_found",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedType:   "invalid_request_error",
			expectedCode:   "unauthorized",
		},
		{
			name:           "quota error",
			err:            services.ErrQuotaExceeded,
			expectedStatus: http.StatusTooManyRequests,
			expectedType:   "rate_limit_error",
			expectedCode:   "quota_exceeded",
		},
		{
			name:           "budget error",
			err:            services.ErrMonthlyBudgetExceeded,
			expectedStatus: http.StatusPaymentRequired,
			expectedType:   "insufficient_quota",
			expectedCode:   "budget_exceeded",
		},
		{
			name:           "configuration error",
			err:            services.ErrCatalogNotLoaded,
			expectedStatus: http.StatusServiceUnavailable,
			expectedType:   "server_error",
			expectedCode:   "configuration_missing",
		},
		{
			name:           "external error",
			err:            services.ErrProviderUnavailable,
			expectedStatus: http.StatusBadGateway,
			expectedType:   "server_error",
			expectedCode:   "external",
		},
		{
			name:           "plain error defaults to internal",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedType:   "server_error",
			expectedCode:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			detail := decodeOpenAIError(t, w)
			assert.Equal(t, tt.expectedType, detail.Type)
			assert.Equal(t, tt.expectedCode, detail.Code)
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, w.Body.Len())
	})
}

func TestHandleServiceError_ExplicitStatusWins(t *testing.T) {
	logger := zap.NewNop()

	t.Run("aggregate classified as bad request", func(t *testing.T) {
		err := services.NewDomainError(services.ErrorTypeAggregate,
			`no provider can serve model "nope"`, nil).
			WithStatus(http.StatusBadRequest)
		err.WithDetail("attempted", 0)

		w := httptest.NewRecorder()
		HandleServiceError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		detail := decodeOpenAIError(t, w)
		assert.Equal(t, "invalid_request_error", detail.Type)
		assert.Equal(t, "upstream_routing_failure", detail.Code)
		assert.Equal(t, `no provider can serve model "nope"`, detail.Message)
	})

	t.Run("aggregate classified as bad gateway", func(t *testing.T) {
		err := services.NewDomainError(services.ErrorTypeAggregate,
			"all providers failed", nil).
			WithStatus(http.StatusBadGateway)

		w := httptest.NewRecorder()
		HandleServiceError(w, err, logger)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		detail := decodeOpenAIError(t, w)
		assert.Equal(t, "server_error", detail.Type)
		assert.Equal(t, "upstream_routing_failure", detail.Code)
	})
}

func TestHandleServiceError_ThrottleHeaders(t *testing.T) {
	logger := zap.NewNop()

	t.Run("quota denial carries rate limit headers", func(t *testing.T) {
		err := services.NewDomainError(services.ErrorTypeQuota, "rate limit exceeded", nil).
			WithStatus(http.StatusTooManyRequests)
		err.WithDetail("reason", "rpm_exceeded")
		err.WithDetail("limit", 60)
		err.WithDetail("remaining", 0)
		err.WithDetail("reset_seconds", 17)

		w := httptest.NewRecorder()
		HandleServiceError(w, err, logger)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "17", w.Header().Get("X-RateLimit-Reset"))
		assert.Equal(t, "17", w.Header().Get("Retry-After"))

		detail := decodeOpenAIError(t, w)
		assert.Equal(t, "rate_limit_error", detail.Type)
		assert.Equal(t, "quota_exceeded", detail.Code)
	})

	t.Run("retry-after never drops below one second", func(t *testing.T) {
		err := services.NewDomainError(services.ErrorTypeQuota, "rate limit exceeded", nil).
			WithStatus(http.StatusTooManyRequests)
		err.WithDetail("limit", 60)
		err.WithDetail("remaining", 0)
		err.WithDetail("reset_seconds", 0)

		w := httptest.NewRecorder()
		HandleServiceError(w, err, logger)

		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("missing details leave headers unset", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, services.ErrQuotaExceeded, logger)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, w.Header().Get("Retry-After"))
	})
}

func TestHandleServiceError_MessageUsesDomainMessage(t *testing.T) {
	logger := zap.NewNop()

	wrapped := services.NewDomainError(services.ErrorTypeExternal,
		"provider unavailable", errors.New("dial tcp: connection refused"))

	w := httptest.NewRecorder()
	HandleServiceError(w, wrapped, logger)

	detail := decodeOpenAIError(t, w)
	assert.Equal(t, "provider unavailable", detail.Message)
	assert.NotContains(t, detail.Message, "dial tcp")
}
