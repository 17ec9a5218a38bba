package breaker

import (
	"context"
	"sync"
	"time"
)

type memoryState struct {
	failures int
	expires  time.Time
}

// MemoryStore is an in-process breaker store for single-instance and test
// deployments. State does not survive restarts; durable deployments use
// the Redis store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*memoryState
	ttl    time.Duration
}

// NewMemoryStore creates an in-memory breaker store. A non-positive TTL
// falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		states: make(map[string]*memoryState),
		ttl:    ttl,
	}
}

func (s *MemoryStore) Failures(_ context.Context, provider string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[provider]
	if !ok || time.Now().After(state.expires) {
		return 0, nil
	}
	return state.failures, nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, provider string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	state, ok := s.states[provider]
	if !ok || now.After(state.expires) {
		state = &memoryState{}
		s.states[provider] = state
	}
	state.failures++
	state.expires = now.Add(s.ttl)
	return state.failures, nil
}

func (s *MemoryStore) Reset(_ context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, provider)
	return nil
}
