package quota

import (
	"context"

	"go.uber.org/zap"
)

// Rejection reasons carried on denied decisions.
const (
	ReasonRPMExceeded = "rpm_exceeded"
	ReasonTPMExceeded = "tpm_exceeded"
)

// Decision is the outcome of one admission check, with the limit metadata
// the HTTP boundary needs for X-RateLimit headers.
type Decision struct {
	Admitted     bool
	Limit        int
	Remaining    int
	ResetSeconds int

	// Reason names the exhausted counter on a denied decision.
	Reason string

	// FailOpen marks a decision granted because the counter store was
	// unreachable, not because the check passed.
	FailOpen bool
}

// Tracker is the admission front door over a CounterStore. Quota is a cost
// control, not a security boundary, so a dead store admits rather than
// blocking all traffic.
type Tracker struct {
	store  CounterStore
	logger *zap.Logger
}

// NewTracker creates a quota tracker over the given store.
func NewTracker(store CounterStore, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// CheckQuota atomically admits or rejects one request for the scope. The
// request counter is charged here; the token counter is only read, since
// consumption is unknown until the provider responds.
func (t *Tracker) CheckQuota(ctx context.Context, scope string, maxRPM, maxTPM int) Decision {
	counts, err := t.store.Admit(ctx, scope, maxRPM, maxTPM)
	if err != nil {
		t.logger.Warn("quota store unreachable, failing open",
			zap.String("scope", scope),
			zap.Error(err))
		return Decision{Admitted: true, FailOpen: true, Limit: maxRPM}
	}

	decision := Decision{
		Admitted:     counts.Admitted,
		Limit:        maxRPM,
		Remaining:    maxRPM - counts.RPM,
		ResetSeconds: counts.ResetSeconds,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if !counts.Admitted {
		if maxRPM > 0 && counts.RPM >= maxRPM {
			decision.Reason = ReasonRPMExceeded
		} else {
			decision.Reason = ReasonTPMExceeded
		}
		t.logger.Debug("quota rejected",
			zap.String("scope", scope),
			zap.String("reason", decision.Reason),
			zap.Int("rpm", counts.RPM),
			zap.Int("tpm", counts.TPM))
	}

	return decision
}

// RecordUsage charges the real token count of a completed request against
// the scope. Store failures are logged and swallowed for the same
// availability reason as CheckQuota.
func (t *Tracker) RecordUsage(ctx context.Context, scope string, tokens int) {
	if tokens <= 0 {
		return
	}
	if err := t.store.AddTokens(ctx, scope, tokens); err != nil {
		t.logger.Warn("failed to record token usage",
			zap.String("scope", scope),
			zap.Int("tokens", tokens),
			zap.Error(err))
	}
}
