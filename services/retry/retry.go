// Package retry runs a fallible operation under an exponential backoff
// policy. The policy knows nothing about providers: it sees only an
// operation and a predicate deciding which errors are worth another
// attempt.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy describes the retry behavior for one execution. The zero value
// makes a single attempt with no delay.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first try. Zero
	// means the operation runs exactly once.
	MaxRetries int

	// InitialDelay is the pre-jitter delay before the first retry.
	InitialDelay time.Duration

	// BackoffMultiplier scales the delay per attempt. 1.0 keeps the delay
	// constant; jitter is still applied independently each time.
	BackoffMultiplier float64

	// ShouldRetry decides whether an error is worth another attempt. Nil
	// retries every error.
	ShouldRetry func(error) bool

	// jitterFn and sleepFn are overridable in tests.
	jitterFn func() float64
	sleepFn  func(context.Context, time.Duration) error
}

// Execute runs op until it succeeds, a non-retryable error occurs, the
// retry budget is exhausted, or the context is cancelled. The first
// attempt runs immediately; each retry waits initial × multiplier^attempt
// scaled by ±10% jitter. Cancellation during a delay unwinds with the
// context's error.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}
		if err := p.sleep(ctx, p.delay(attempt)); err != nil {
			return err
		}
	}
}

// delay computes the post-jitter delay for a retry, floored at zero.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))

	jitter := p.jitterFn
	if jitter == nil {
		jitter = defaultJitter
	}
	d *= jitter()

	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.sleepFn != nil {
		return p.sleepFn(ctx, d)
	}
	return sleepContext(ctx, d)
}

// defaultJitter draws a multiplicative factor in [0.9, 1.1].
func defaultJitter() float64 {
	return 0.9 + 0.2*rand.Float64()
}

// sleepContext waits for the delay or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
