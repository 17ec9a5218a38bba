package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/services/providers"
	"github.com/rudironsoni/Synaxis-sub005/services/quota"
	"github.com/rudironsoni/Synaxis-sub005/services/routing"
)

// RouteRequest carries one inbound completion request through the pipeline.
type RouteRequest struct {
	// Tenant is the authenticated tenant whose limits govern admission.
	Tenant *models.Tenant

	// Request is the OpenAI-shaped payload. Model may name a canonical
	// model, an alias, or a bare model path.
	Request *openai.ChatCompletionRequest

	// RequestID is the external correlation ID. Generated when empty.
	RequestID string

	IPAddress string
	UserAgent string
}

// RouteResult is the single success outcome of a routed request. Exactly
// one of Response and Stream is set, matching the requested mode. For
// streams, Usage, Cost and LatencyMs are settled by FinishStream after the
// stream has been relayed.
type RouteResult struct {
	RequestID      string
	ModelRequested string
	ModelResolved  string
	Provider       string

	Response *openai.ChatCompletionResponse
	Stream   *providers.Stream

	Usage     openai.Usage
	Cost      decimal.Decimal
	LatencyMs int

	// Attempts counts candidates attempted including the one that
	// succeeded; Skips lists candidates passed over by live gates.
	Attempts int
	Skips    []routing.Skip

	// RateLimit is the tenant admission decision, surfaced so the
	// transport layer can set X-RateLimit headers.
	RateLimit quota.Decision

	// Stream finalization state, consumed by Service.FinishStream.
	req       *RouteRequest
	candidate routing.Candidate
	record    *models.RequestRecord
	start     time.Time
	finalized bool
}

// CandidateFailure is one candidate's terminal failure during the walk,
// recorded after its retry budget is exhausted.
type CandidateFailure struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// newCandidateFailure tags a candidate error with its provider identity.
// Error shapes without a usable status default to 500.
func newCandidateFailure(cand routing.Candidate, err error) CandidateFailure {
	failure := CandidateFailure{
		Provider:   cand.Provider.Name,
		Model:      cand.ModelPath,
		StatusCode: http.StatusInternalServerError,
		Code:       "provider_error",
	}

	var perr *providers.ProviderError
	if errors.As(err, &perr) {
		if perr.StatusCode != 0 {
			failure.StatusCode = perr.StatusCode
		}
		if perr.Code != "" {
			failure.Code = perr.Code
		}
		failure.Message = redactSecrets(perr.Message)
	} else if err != nil {
		failure.Message = redactSecrets(err.Error())
	}

	return failure
}

func (f CandidateFailure) reason() string {
	if f.Message != "" {
		return f.Message
	}
	return f.Code
}

// classifyFailures maps an exhausted candidate walk to an HTTP class. Any
// upstream throttle or server error means the providers themselves are
// struggling (502). A unanimous 400/404 verdict means every provider
// judged the request itself invalid (400). Anything else is 500.
func classifyFailures(failures []CandidateFailure) int {
	for _, f := range failures {
		if f.StatusCode == http.StatusTooManyRequests || (f.StatusCode >= 500 && f.StatusCode <= 599) {
			return http.StatusBadGateway
		}
	}
	if len(failures) == 0 {
		return http.StatusInternalServerError
	}
	for _, f := range failures {
		if f.StatusCode != http.StatusBadRequest && f.StatusCode != http.StatusNotFound {
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

// aggregateMessage summarizes which providers were tried and why each
// failed. Secrets were already scrubbed per failure.
func aggregateMessage(requested string, failures []CandidateFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers failed for model %q", requested)
	for i, f := range failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Provider, f.reason())
	}
	return b.String()
}

// Upstream error messages occasionally echo request headers back; scrub
// bearer tokens and API-key-shaped strings before a message crosses the
// gateway boundary.
var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._+/=-]+`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|gsk)[-_][A-Za-z0-9_-]{8,}`)
)

func redactSecrets(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer [redacted]")
	return apiKeyPattern.ReplaceAllString(s, "[redacted]")
}
