// Package routing orders resolved candidates and gates them against live
// health signals. Failover is not a state machine here: the orchestrator
// walks the sorted list and each candidate is vetted just before its
// attempt, so an unhealthy cheap provider simply yields to the next one.
package routing

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/services/breaker"
	"github.com/rudironsoni/Synaxis-sub005/services/quota"
	"github.com/rudironsoni/Synaxis-sub005/services/resolver"
)

// Skip reasons attached to candidates the gate refuses.
const (
	SkipReasonBreakerOpen   = "breaker_open"
	SkipReasonProviderQuota = "provider_quota_exhausted"
)

// Candidate is a resolved route enriched with the ordering metadata the
// router sorts by.
type Candidate struct {
	resolver.Candidate

	// FreeTier mirrors the provider flag; free routes sort first.
	FreeTier bool

	// CostPerToken is the effective per-token rate for this route, taking
	// any per-model override ahead of the provider's flat rate.
	CostPerToken float64

	// Tier is the provider's priority tier; lower tiers sort first.
	Tier int
}

// Skip records why a candidate was passed over without an attempt.
type Skip struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
}

// Service ranks candidates and applies the pre-attempt gates.
type Service struct {
	breaker *breaker.Breaker
	quota   *quota.Tracker
	logger  *zap.Logger
}

// NewService creates a new routing service.
func NewService(br *breaker.Breaker, tracker *quota.Tracker, logger *zap.Logger) *Service {
	return &Service{
		breaker: br,
		quota:   tracker,
		logger:  logger,
	}
}

// GetCandidates enriches the resolver's candidates with cost metadata and
// returns them in attempt order: free tiers first, then cheapest, then
// lowest tier. The sort is stable, so ties keep the resolver's order.
func (s *Service) GetCandidates(res *resolver.Result) []Candidate {
	if res == nil || res.Empty() {
		return nil
	}

	cands := make([]Candidate, 0, len(res.Candidates))
	for _, rc := range res.Candidates {
		cands = append(cands, Candidate{
			Candidate:    rc,
			FreeTier:     rc.Provider.FreeTier,
			CostPerToken: effectiveCost(rc),
			Tier:         rc.Provider.Tier,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.FreeTier != b.FreeTier {
			return a.FreeTier
		}
		if a.CostPerToken != b.CostPerToken {
			return a.CostPerToken < b.CostPerToken
		}
		return a.Tier < b.Tier
	})

	return cands
}

// Gate vets one candidate immediately before its attempt. A nil return
// means proceed; otherwise the candidate is skipped for the returned
// reason. An admitted candidate has already been charged against the
// provider's request-rate counter, which is why gating happens per walk
// step rather than as a batch pre-filter.
func (s *Service) Gate(ctx context.Context, cand Candidate) *Skip {
	name := cand.Provider.Name

	if !s.breaker.Allow(ctx, name) {
		s.logger.Debug("skipping candidate, circuit breaker open",
			zap.String("provider", name),
			zap.String("model", cand.ModelPath))
		return &Skip{Provider: name, Model: cand.ModelID().String(), Reason: SkipReasonBreakerOpen}
	}

	if cand.Provider.RequestsPerMinute > 0 {
		decision := s.quota.CheckQuota(ctx, quota.ProviderScope(name), cand.Provider.RequestsPerMinute, 0)
		if !decision.Admitted {
			s.logger.Debug("skipping candidate, provider rate limit exhausted",
				zap.String("provider", name),
				zap.String("model", cand.ModelPath),
				zap.Int("limit", decision.Limit))
			return &Skip{Provider: name, Model: cand.ModelID().String(), Reason: SkipReasonProviderQuota}
		}
	}

	return nil
}

// effectiveCost resolves the candidate's per-token rate. A per-model cost
// override blends input and output rates; otherwise the provider's flat
// rate applies.
func effectiveCost(rc resolver.Candidate) float64 {
	if mc := rc.Provider.CostFor(rc.ModelPath); mc != nil {
		return (mc.InputPerToken + mc.OutputPerToken) / 2
	}
	return rc.Provider.CostPerToken
}
