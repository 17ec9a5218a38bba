package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingStateStore simulates an unreachable breaker backend.
type failingStateStore struct{}

func (failingStateStore) Failures(ctx context.Context, key string) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStateStore) RecordFailure(ctx context.Context, key string) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStateStore) Reset(ctx context.Context, key string) error {
	return errors.New("connection refused")
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(time.Minute), 3, zap.NewNop())

	assert.True(t, b.Allow(ctx, "groq"))

	b.RecordFailure(ctx, "groq")
	b.RecordFailure(ctx, "groq")
	assert.True(t, b.Allow(ctx, "groq"), "two failures must not open a threshold-3 breaker")

	b.RecordFailure(ctx, "groq")
	assert.False(t, b.Allow(ctx, "groq"))

	state := b.State(ctx, "groq")
	assert.True(t, state.Open)
	assert.Equal(t, 3, state.Failures)
	assert.Equal(t, "groq", state.Provider)
}

func TestBreaker_SuccessEndsStreak(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(time.Minute), 3, zap.NewNop())

	b.RecordFailure(ctx, "groq")
	b.RecordFailure(ctx, "groq")
	b.RecordSuccess(ctx, "groq")
	b.RecordFailure(ctx, "groq")

	// The streak restarted at one, so the breaker stays closed.
	assert.True(t, b.Allow(ctx, "groq"))
	assert.Equal(t, 1, b.State(ctx, "groq").Failures)
}

func TestBreaker_StateDecays(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(50*time.Millisecond), 3, zap.NewNop())

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "groq")
	}
	require.False(t, b.Allow(ctx, "groq"))

	time.Sleep(80 * time.Millisecond)

	assert.True(t, b.Allow(ctx, "groq"))
	assert.Equal(t, 0, b.State(ctx, "groq").Failures)
}

func TestBreaker_Reset(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(time.Minute), 3, zap.NewNop())

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "groq")
	}
	require.False(t, b.Allow(ctx, "groq"))

	require.NoError(t, b.Reset(ctx, "groq"))
	assert.True(t, b.Allow(ctx, "groq"))
}

func TestBreaker_ProvidersAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(time.Minute), 3, zap.NewNop())

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "groq")
	}

	assert.False(t, b.Allow(ctx, "groq"))
	assert.True(t, b.Allow(ctx, "openai"))
}

func TestBreaker_FailsOpenOnStoreErrors(t *testing.T) {
	ctx := context.Background()
	b := New(failingStateStore{}, 3, zap.NewNop())

	assert.True(t, b.Allow(ctx, "groq"))

	// Recording against a dead store must not panic or propagate.
	b.RecordFailure(ctx, "groq")
	b.RecordSuccess(ctx, "groq")

	state := b.State(ctx, "groq")
	assert.False(t, state.Open)

	assert.Error(t, b.Reset(ctx, "groq"))
}

func TestBreaker_DefaultThreshold(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore(time.Minute), 0, zap.NewNop())

	for i := 0; i < DefaultThreshold-1; i++ {
		b.RecordFailure(ctx, "groq")
	}
	assert.True(t, b.Allow(ctx, "groq"))

	b.RecordFailure(ctx, "groq")
	assert.False(t, b.Allow(ctx, "groq"))
}
