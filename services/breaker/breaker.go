// Package breaker protects upstream providers that are failing
// consecutively. State lives in a small keyed store shared by all gateway
// instances, so a provider known to be down is not re-probed by every
// instance after every deploy.
package breaker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the consecutive-failure count that opens the
	// breaker.
	DefaultThreshold = 3

	// DefaultTTL is how long failure state survives without new failures
	// before it decays.
	DefaultTTL = 5 * time.Minute
)

// StateStore persists consecutive-failure counts per provider key. A
// success wipes the count, so the stored value is always the length of the
// current failure streak.
type StateStore interface {
	// Failures returns the current consecutive-failure count.
	Failures(ctx context.Context, key string) (int, error)

	// RecordFailure increments the count, refreshes its decay TTL and
	// returns the new count.
	RecordFailure(ctx context.Context, key string) (int, error)

	// Reset clears the count.
	Reset(ctx context.Context, key string) error
}

// State is a provider's breaker status for admin surfaces.
type State struct {
	Provider string `json:"provider"`
	Failures int    `json:"failures"`
	Open     bool   `json:"open"`
}

// Breaker tracks provider failure streaks and reports which providers the
// router should skip. An open breaker is not an error condition: the
// candidate is treated exactly like a failed live health check.
type Breaker struct {
	store     StateStore
	threshold int
	logger    *zap.Logger
}

// New creates a breaker over the given store. A non-positive threshold
// falls back to DefaultThreshold.
func New(store StateStore, threshold int, logger *zap.Logger) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Breaker{
		store:     store,
		threshold: threshold,
		logger:    logger,
	}
}

// Allow reports whether the provider may be attempted. If the state store
// is unreachable the breaker fails open: skipping every provider on a
// store outage would turn a degraded dependency into a full outage.
func (b *Breaker) Allow(ctx context.Context, provider string) bool {
	failures, err := b.store.Failures(ctx, provider)
	if err != nil {
		b.logger.Warn("breaker store unreachable, failing open",
			zap.String("provider", provider),
			zap.Error(err))
		return true
	}
	return failures < b.threshold
}

// RecordSuccess ends the provider's failure streak.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) {
	if err := b.store.Reset(ctx, provider); err != nil {
		b.logger.Warn("failed to reset breaker state",
			zap.String("provider", provider),
			zap.Error(err))
	}
}

// RecordFailure extends the provider's failure streak and logs when the
// streak crosses the open threshold.
func (b *Breaker) RecordFailure(ctx context.Context, provider string) {
	failures, err := b.store.RecordFailure(ctx, provider)
	if err != nil {
		b.logger.Warn("failed to record breaker failure",
			zap.String("provider", provider),
			zap.Error(err))
		return
	}
	if failures == b.threshold {
		b.logger.Warn("circuit breaker opened",
			zap.String("provider", provider),
			zap.Int("consecutive_failures", failures))
	}
}

// Reset force-closes the provider's breaker. Admin surface.
func (b *Breaker) Reset(ctx context.Context, provider string) error {
	if err := b.store.Reset(ctx, provider); err != nil {
		return err
	}
	b.logger.Info("circuit breaker reset", zap.String("provider", provider))
	return nil
}

// State returns the provider's current breaker status. Store errors report
// a closed breaker, consistent with Allow.
func (b *Breaker) State(ctx context.Context, provider string) State {
	failures, err := b.store.Failures(ctx, provider)
	if err != nil {
		b.logger.Warn("failed to read breaker state",
			zap.String("provider", provider),
			zap.Error(err))
		return State{Provider: provider}
	}
	return State{
		Provider: provider,
		Failures: failures,
		Open:     failures >= b.threshold,
	}
}
