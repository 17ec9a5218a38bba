// Package orchestrator runs the full routing pipeline for one request:
// resolve the model, admit against tenant quota and budget, then walk the
// sorted candidates until one succeeds or all have failed. Per-candidate
// failures never escape individually; the caller sees either one success
// or one classified aggregate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
	"github.com/rudironsoni/Synaxis-sub005/services"
	"github.com/rudironsoni/Synaxis-sub005/services/audit"
	"github.com/rudironsoni/Synaxis-sub005/services/breaker"
	"github.com/rudironsoni/Synaxis-sub005/services/budget"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
	"github.com/rudironsoni/Synaxis-sub005/services/providers"
	"github.com/rudironsoni/Synaxis-sub005/services/quota"
	"github.com/rudironsoni/Synaxis-sub005/services/resolver"
	"github.com/rudironsoni/Synaxis-sub005/services/retry"
	"github.com/rudironsoni/Synaxis-sub005/services/routing"
)

const persistTimeout = 5 * time.Second

// httpStatusClientClosed is the conventional (nginx) status recorded for
// requests whose caller disconnected before a response was produced.
const httpStatusClientClosed = 499

// Config holds the orchestrator's retry and admission defaults.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	DefaultRPM        int
	DefaultTPM        int
}

// DefaultConfig mirrors the gateway's environment defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        2,
		InitialDelay:      200 * time.Millisecond,
		BackoffMultiplier: 2.0,
		DefaultRPM:        60,
		DefaultTPM:        100000,
	}
}

// Service owns the per-request routing pipeline and its bookkeeping.
type Service struct {
	catalog    *catalog.Service
	resolver   *resolver.Service
	router     *routing.Service
	registry   *providers.Registry
	breaker    *breaker.Breaker
	quota      *quota.Tracker
	budget     *budget.Service
	audit      *audit.Service
	requests   repositories.RequestLogRepository
	policy     retry.Policy
	defaultRPM int
	defaultTPM int
	logger     *zap.Logger
}

// NewService wires the routing pipeline.
func NewService(
	cat *catalog.Service,
	res *resolver.Service,
	router *routing.Service,
	registry *providers.Registry,
	br *breaker.Breaker,
	tracker *quota.Tracker,
	budgetSvc *budget.Service,
	auditSvc *audit.Service,
	requests repositories.RequestLogRepository,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		catalog:  cat,
		resolver: res,
		router:   router,
		registry: registry,
		breaker:  br,
		quota:    tracker,
		budget:   budgetSvc,
		audit:    auditSvc,
		requests: requests,
		policy: retry.Policy{
			MaxRetries:        cfg.MaxRetries,
			InitialDelay:      cfg.InitialDelay,
			BackoffMultiplier: cfg.BackoffMultiplier,
			ShouldRetry:       providers.IsRetryable,
		},
		defaultRPM: cfg.DefaultRPM,
		defaultTPM: cfg.DefaultTPM,
		logger:     logger,
	}
}

// Route handles a non-streaming completion end to end.
func (s *Service) Route(ctx context.Context, rr *RouteRequest) (*RouteResult, error) {
	return s.route(ctx, rr, false)
}

// RouteStream handles a streaming completion up to the point the upstream
// stream opens. The caller relays the stream and must call FinishStream
// afterwards to settle usage and bookkeeping.
func (s *Service) RouteStream(ctx context.Context, rr *RouteRequest) (*RouteResult, error) {
	return s.route(ctx, rr, true)
}

func (s *Service) route(ctx context.Context, rr *RouteRequest, streaming bool) (*RouteResult, error) {
	if rr == nil || rr.Tenant == nil || rr.Request == nil {
		return nil, services.NewDomainError(services.ErrorTypeInternal, "route request missing tenant or payload", nil)
	}
	if rr.RequestID == "" {
		rr.RequestID = uuid.NewString()
	}

	start := time.Now()
	tenant := rr.Tenant
	rec := models.NewRequestRecord(tenant.ID, rr.RequestID, rr.Request.Model)

	s.logger.Info("routing request",
		zap.String("request_id", rr.RequestID),
		zap.String("tenant", tenant.Key),
		zap.String("model", rr.Request.Model),
		zap.Bool("stream", streaming))

	// The catalog loads asynchronously at startup; wait for the first
	// snapshot rather than failing the earliest requests.
	if !s.catalog.Loaded() {
		select {
		case <-s.catalog.Ready():
		case <-ctx.Done():
			return nil, services.NewDomainError(services.ErrorTypeConfiguration,
				"provider catalog not loaded", ctx.Err()).
				WithStatus(http.StatusServiceUnavailable)
		}
	}

	s.persistNew(ctx, rec)

	// Step 1: resolve the requested model against the catalog.
	required := providers.RequiredCapabilities(rr.Request)
	res, err := s.resolver.Resolve(rr.Request.Model, required, tenant)
	if err != nil {
		return nil, s.reject(rec, err)
	}
	if res.Empty() {
		derr := services.NewDomainError(services.ErrorTypeAggregate,
			fmt.Sprintf("no provider can serve model %q", rr.Request.Model), nil).
			WithStatus(http.StatusBadRequest)
		derr.WithDetail("attempted", 0)
		rec.MarkRejected(string(services.ErrorTypeAggregate), derr.Message, http.StatusBadRequest)
		s.persistFinal(rec)
		s.auditDrop(s.audit.LogRouteFailure(rec, rr.IPAddress, rr.UserAgent, nil))
		return nil, derr
	}

	// Step 2: tenant admission. The request counter is charged here;
	// token usage is recorded only after completion.
	decision := s.quota.CheckQuota(ctx, quota.TenantScope(tenant.Key),
		tenant.EffectiveRPM(s.defaultRPM), tenant.EffectiveTPM(s.defaultTPM))
	if !decision.Admitted {
		derr := services.NewDomainError(services.ErrorTypeQuota, "rate limit exceeded", nil).
			WithStatus(http.StatusTooManyRequests)
		derr.WithDetail("reason", decision.Reason)
		derr.WithDetail("limit", decision.Limit)
		derr.WithDetail("remaining", decision.Remaining)
		derr.WithDetail("reset_seconds", decision.ResetSeconds)
		rec.MarkRejected(string(services.ErrorTypeQuota), decision.Reason, http.StatusTooManyRequests)
		s.persistFinal(rec)
		s.auditDrop(s.audit.LogQuotaBlock(rec, rr.IPAddress, rr.UserAgent, decision))
		return nil, derr
	}

	// Step 3: monthly budget.
	if bd := s.budget.CheckBudget(ctx, tenant); !bd.Allowed {
		derr := services.NewDomainError(services.ErrorTypeBudget, "monthly budget exceeded", nil).
			WithStatus(http.StatusPaymentRequired)
		derr.WithDetail("spend", bd.Spend.String())
		derr.WithDetail("limit", bd.Limit.String())
		rec.MarkRejected(string(services.ErrorTypeBudget), "monthly budget exceeded", http.StatusPaymentRequired)
		s.persistFinal(rec)
		s.auditDrop(s.audit.LogBudgetBlock(rec, rr.IPAddress, rr.UserAgent, bd))
		return nil, derr
	}

	// Step 4: walk the sorted candidates strictly in order. Each candidate
	// is gated live, then fully retried before moving on.
	cands := s.router.GetCandidates(res)
	var failures []CandidateFailure
	var skips []routing.Skip

	for _, cand := range cands {
		if ctx.Err() != nil {
			return nil, s.cancelled(rec, ctx.Err())
		}

		if skip := s.router.Gate(ctx, cand); skip != nil {
			skips = append(skips, *skip)
			continue
		}

		resp, stream, err := s.attempt(ctx, cand, rr.Request, streaming)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.cancelled(rec, ctx.Err())
			}
			failure := newCandidateFailure(cand, err)
			failures = append(failures, failure)
			s.logger.Debug("candidate failed",
				zap.String("request_id", rr.RequestID),
				zap.String("provider", failure.Provider),
				zap.String("model", failure.Model),
				zap.Int("status", failure.StatusCode),
				zap.String("code", failure.Code))
			continue
		}

		result := &RouteResult{
			RequestID:      rr.RequestID,
			ModelRequested: rr.Request.Model,
			ModelResolved:  cand.ModelID().String(),
			Provider:       cand.Provider.Name,
			Attempts:       len(failures) + 1,
			Skips:          skips,
			RateLimit:      decision,
			req:            rr,
			candidate:      cand,
			record:         rec,
			start:          start,
		}
		if streaming {
			result.Stream = stream
			return result, nil
		}
		result.Response = resp
		s.complete(ctx, result, resp)
		return result, nil
	}

	return nil, s.exhausted(rec, rr, failures, skips)
}

// attempt runs one candidate under the retry policy. Breaker state is
// recorded per provider call, except when the caller's context ended the
// call: a cancelled attempt says nothing about provider health.
func (s *Service) attempt(ctx context.Context, cand routing.Candidate, base *openai.ChatCompletionRequest, streaming bool) (*openai.ChatCompletionResponse, *providers.Stream, error) {
	prov := s.registry.For(cand.Provider)

	attemptReq := *base
	attemptReq.Model = cand.ModelPath

	var resp *openai.ChatCompletionResponse
	var stream *providers.Stream
	err := s.policy.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		if streaming {
			stream, callErr = prov.StreamChatCompletion(ctx, &attemptReq)
		} else {
			resp, callErr = prov.ChatCompletion(ctx, &attemptReq)
		}
		if callErr != nil {
			if ctx.Err() == nil {
				s.breaker.RecordFailure(ctx, cand.Provider.Name)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.breaker.RecordSuccess(ctx, cand.Provider.Name)
	return resp, stream, nil
}

// complete finalizes a non-streaming success: charge token usage, price
// the request, persist the record and audit the decision.
func (s *Service) complete(ctx context.Context, result *RouteResult, resp *openai.ChatCompletionResponse) {
	rr := result.req
	cand := result.candidate

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.PromptTokens = providers.EstimateRequestTokens(rr.Request)
		usage.CompletionTokens = providers.EstimateTokens(responseText(resp))
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	s.quota.RecordUsage(ctx, quota.TenantScope(rr.Tenant.Key), usage.TotalTokens)

	cost := budget.CostOf(cand.Provider, cand.ModelPath, usage.PromptTokens, usage.CompletionTokens)
	latency := int(time.Since(result.start).Milliseconds())

	result.Usage = usage
	result.Cost = cost
	result.LatencyMs = latency

	result.record.MarkCompleted(cand.Provider.Name, result.ModelResolved, usage.PromptTokens, usage.CompletionTokens, latency, cost)
	s.persistFinal(result.record)
	s.auditDrop(s.audit.LogRouteSuccess(result.record, rr.IPAddress, rr.UserAgent))

	s.logger.Info("request routed",
		zap.String("request_id", result.RequestID),
		zap.String("model_requested", result.ModelRequested),
		zap.String("model_resolved", result.ModelResolved),
		zap.String("provider", result.Provider),
		zap.Int("attempts", result.Attempts),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Int("latency_ms", latency))
}

// FinishStream settles usage, cost and bookkeeping for a streaming request
// after the caller has relayed the stream. The stream accumulated usage
// while it was read, so this works for partially relayed streams too:
// only what was actually received is charged.
func (s *Service) FinishStream(result *RouteResult) {
	if result == nil || result.Stream == nil || result.finalized {
		return
	}
	result.finalized = true

	rr := result.req
	cand := result.candidate

	var usage openai.Usage
	if u := result.Stream.Usage(); u != nil {
		usage = *u
	}
	if usage.TotalTokens == 0 {
		usage.PromptTokens = providers.EstimateRequestTokens(rr.Request)
		usage.CompletionTokens = providers.EstimateTokens(result.Stream.CompletionText())
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	// The request context is typically done by the time a stream is
	// finalized; settle on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s.quota.RecordUsage(ctx, quota.TenantScope(rr.Tenant.Key), usage.TotalTokens)

	cost := budget.CostOf(cand.Provider, cand.ModelPath, usage.PromptTokens, usage.CompletionTokens)
	latency := int(time.Since(result.start).Milliseconds())

	result.Usage = usage
	result.Cost = cost
	result.LatencyMs = latency

	result.record.MarkCompleted(cand.Provider.Name, result.ModelResolved, usage.PromptTokens, usage.CompletionTokens, latency, cost)
	if err := s.requests.Update(ctx, result.record); err != nil {
		s.logger.Warn("failed to update request record",
			zap.String("request_id", result.record.RequestID),
			zap.Error(err))
	}
	s.auditDrop(s.audit.LogRouteSuccess(result.record, rr.IPAddress, rr.UserAgent))

	s.logger.Info("stream completed",
		zap.String("request_id", result.RequestID),
		zap.String("provider", result.Provider),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Int("latency_ms", latency))
}

// reject finalizes the record for a request denied before any provider
// attempt and passes the error through unchanged.
func (s *Service) reject(rec *models.RequestRecord, err error) error {
	status := services.GetStatusCode(err)
	if status == 0 {
		if services.IsValidationError(err) {
			status = http.StatusBadRequest
		} else {
			status = http.StatusServiceUnavailable
		}
	}
	rec.MarkRejected(string(services.GetErrorType(err)), domainMessage(err), status)
	s.persistFinal(rec)
	return err
}

// cancelled finalizes the record for a request whose caller went away
// mid-walk. No usage is recorded: nothing was consumed to completion.
func (s *Service) cancelled(rec *models.RequestRecord, cause error) error {
	latency := int(time.Since(rec.CreatedAt).Milliseconds())
	rec.MarkFailed("request_cancelled", "request cancelled before completion", httpStatusClientClosed, latency)
	s.persistFinal(rec)
	return services.NewDomainError(services.ErrorTypeInternal, "request cancelled before completion", cause).
		WithStatus(httpStatusClientClosed)
}

// exhausted builds the aggregate error after the walk ran out of
// candidates.
func (s *Service) exhausted(rec *models.RequestRecord, rr *RouteRequest, failures []CandidateFailure, skips []routing.Skip) error {
	latency := int(time.Since(rec.CreatedAt).Milliseconds())

	if len(failures) == 0 {
		// Nothing was attempted: every candidate was skipped by a live
		// gate (breaker open or provider quota exhausted).
		msg := fmt.Sprintf("no healthy providers available for model %q", rr.Request.Model)
		derr := services.NewDomainError(services.ErrorTypeExternal, msg, nil).
			WithStatus(http.StatusServiceUnavailable)
		derr.WithDetail("skipped", skips)
		rec.MarkFailed("no_healthy_providers", msg, http.StatusServiceUnavailable, latency)
		s.persistFinal(rec)
		s.auditDrop(s.audit.LogRouteFailure(rec, rr.IPAddress, rr.UserAgent, map[string]interface{}{
			"skipped": skips,
		}))
		return derr
	}

	status := classifyFailures(failures)
	msg := aggregateMessage(rr.Request.Model, failures)
	derr := services.NewDomainError(services.ErrorTypeAggregate, msg, nil).WithStatus(status)
	derr.WithDetail("attempted", len(failures))
	derr.WithDetail("failures", failures)
	if len(skips) > 0 {
		derr.WithDetail("skipped", skips)
	}

	rec.MarkFailed(string(services.ErrorTypeAggregate), msg, status, latency)
	s.persistFinal(rec)
	s.auditDrop(s.audit.LogRouteFailure(rec, rr.IPAddress, rr.UserAgent, map[string]interface{}{
		"failures": failures,
		"skipped":  skips,
	}))

	s.logger.Warn("all candidates failed",
		zap.String("request_id", rec.RequestID),
		zap.String("model", rr.Request.Model),
		zap.Int("attempted", len(failures)),
		zap.Int("skipped", len(skips)),
		zap.Int("status", status))

	return derr
}

// Record writes are bookkeeping: failures are logged, never surfaced.
func (s *Service) persistNew(ctx context.Context, rec *models.RequestRecord) {
	if err := s.requests.Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to insert request record",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
	}
}

// persistFinal runs on its own context: the request context may already be
// cancelled when a record is finalized.
func (s *Service) persistFinal(rec *models.RequestRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.requests.Update(ctx, rec); err != nil {
		s.logger.Warn("failed to update request record",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
	}
}

func (s *Service) auditDrop(err error) {
	if err != nil {
		s.logger.Debug("audit event dropped", zap.Error(err))
	}
}

func domainMessage(err error) string {
	var derr *services.DomainError
	if errors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}

func responseText(resp *openai.ChatCompletionResponse) string {
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Message.Content)
	}
	return b.String()
}
