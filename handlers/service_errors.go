package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// HandleServiceError maps a pipeline error onto the OpenAI-compatible error
// envelope. The HTTP status comes from the error's explicit classification
// when the core decided one (aggregate outcomes carry their own), otherwise
// it derives from the error type. Throttle responses additionally carry
// X-RateLimit and Retry-After headers so SDK backoff logic works unchanged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := services.GetStatusCode(err)
	if status == 0 {
		status = statusForType(err)
	}

	if status == http.StatusTooManyRequests {
		details := services.GetErrorDetails(err)
		limit, lok := intDetail(details, "limit")
		remaining, rok := intDetail(details, "remaining")
		reset, sok := intDetail(details, "reset_seconds")
		if lok && rok && sok {
			utils.SetRateLimitHeaders(w, limit, remaining, reset)
		}
		if sok {
			utils.SetRetryAfter(w, reset)
		}
	}

	code := string(services.GetErrorType(err))
	message := err.Error()
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	if status >= 500 {
		logger.Error("request failed",
			zap.Int("status", status),
			zap.String("code", code),
			zap.Error(err))
	} else {
		logger.Debug("request rejected",
			zap.Int("status", status),
			zap.String("code", code),
			zap.String("message", message))
	}

	if werr := utils.WriteOpenAIError(w, status, errorTypeForStatus(status), code, message); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}

// statusForType derives an HTTP status for errors whose classification was
// not decided inside the core.
func statusForType(err error) int {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsQuotaError(err):
		return http.StatusTooManyRequests
	case services.IsBudgetError(err):
		return http.StatusPaymentRequired
	case services.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	case services.IsExternalError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorTypeForStatus picks the OpenAI envelope type string. Client SDKs key
// their local handling off this value, so it follows the upstream vocabulary
// rather than the internal error taxonomy.
func errorTypeForStatus(status int) string {
	switch {
	case status == http.StatusPaymentRequired:
		return "insufficient_quota"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}

func intDetail(details map[string]interface{}, key string) (int, bool) {
	if details == nil {
		return 0, false
	}
	v, ok := details[key].(int)
	return v, ok
}
