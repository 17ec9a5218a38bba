package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

// capturingPolicy returns a policy that records requested delays instead of
// sleeping.
func capturingPolicy(p Policy, delays *[]time.Duration) Policy {
	p.jitterFn = func() float64 { return 1.0 }
	p.sleepFn = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func TestPolicy_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt success makes no retries", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 3, InitialDelay: time.Second, BackoffMultiplier: 2}, &delays)

		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("zero max retries runs exactly once", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 0, InitialDelay: time.Second, BackoffMultiplier: 2}, &delays)

		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			return errUpstream
		})

		assert.ErrorIs(t, err, errUpstream)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("retries until success", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, BackoffMultiplier: 2}, &delays)

		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return errUpstream
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Len(t, delays, 2)
	})

	t.Run("exhausted budget returns the last error", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 2}, &delays)

		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			return errUpstream
		})

		assert.ErrorIs(t, err, errUpstream)
		assert.Equal(t, 3, calls, "one initial attempt plus two retries")
	})

	t.Run("non-retryable error propagates immediately", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 5, InitialDelay: time.Second, BackoffMultiplier: 2}, &delays)
		p.ShouldRetry = func(err error) bool { return false }

		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			return errUpstream
		})

		assert.ErrorIs(t, err, errUpstream)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("predicate sees the operation error", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 2}, &delays)

		var seen []error
		p.ShouldRetry = func(err error) bool {
			seen = append(seen, err)
			return errors.Is(err, errUpstream)
		}

		final := errors.New("bad request")
		calls := 0
		err := p.Execute(ctx, func(context.Context) error {
			calls++
			if calls == 1 {
				return errUpstream
			}
			return final
		})

		assert.ErrorIs(t, err, final)
		assert.Equal(t, 2, calls)
		assert.Equal(t, []error{errUpstream, final}, seen)
	})
}

func TestPolicy_Delays(t *testing.T) {
	ctx := context.Background()

	t.Run("delay doubles per attempt", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 3, InitialDelay: 200 * time.Millisecond, BackoffMultiplier: 2}, &delays)

		_ = p.Execute(ctx, func(context.Context) error { return errUpstream })

		require.Len(t, delays, 3)
		assert.Equal(t, 200*time.Millisecond, delays[0])
		assert.Equal(t, 400*time.Millisecond, delays[1])
		assert.Equal(t, 800*time.Millisecond, delays[2])
	})

	t.Run("multiplier one keeps delay constant", func(t *testing.T) {
		var delays []time.Duration
		p := capturingPolicy(Policy{MaxRetries: 3, InitialDelay: 150 * time.Millisecond, BackoffMultiplier: 1}, &delays)

		_ = p.Execute(ctx, func(context.Context) error { return errUpstream })

		require.Len(t, delays, 3)
		for _, d := range delays {
			assert.Equal(t, 150*time.Millisecond, d)
		}
	})

	t.Run("jitter stays within ten percent", func(t *testing.T) {
		p := Policy{MaxRetries: 1, InitialDelay: time.Second, BackoffMultiplier: 2}

		for i := 0; i < 200; i++ {
			d := p.delay(0)
			assert.GreaterOrEqual(t, d, 900*time.Millisecond)
			assert.LessOrEqual(t, d, 1100*time.Millisecond)

			d = p.delay(1)
			assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
			assert.LessOrEqual(t, d, 2200*time.Millisecond)
		}
	})
}

func TestPolicy_Cancellation(t *testing.T) {
	t.Run("cancelled context stops before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := Policy{MaxRetries: 2}.Execute(ctx, func(context.Context) error {
			calls++
			return errUpstream
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("cancellation during a delay unwinds the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		p := Policy{MaxRetries: 5, InitialDelay: time.Hour, BackoffMultiplier: 2}

		calls := 0
		done := make(chan error, 1)
		go func() {
			done <- p.Execute(ctx, func(context.Context) error {
				calls++
				return errUpstream
			})
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, 1, calls)
		case <-time.After(time.Second):
			t.Fatal("execute did not observe cancellation")
		}
	})
}
