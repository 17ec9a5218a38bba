package quota

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rpm        int
	tpm        int
	rpmExpires time.Time
	tpmExpires time.Time
}

// MemoryStore is an in-process counter store for single-instance and test
// deployments. The mutex makes Admit atomic within the process; cross-
// instance enforcement needs the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	window  time.Duration
}

// NewMemoryStore creates an in-memory counter store. A non-positive window
// falls back to DefaultWindow.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow * time.Second
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		window:  window,
	}
}

// Admit checks and charges under one lock, mirroring the Redis script.
func (s *MemoryStore) Admit(_ context.Context, scope string, maxRPM, maxTPM int) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e := s.entry(scope, now)

	if maxRPM > 0 && e.rpm >= maxRPM {
		return Counts{RPM: e.rpm, TPM: e.tpm, ResetSeconds: s.secondsUntil(now, e.rpmExpires)}, nil
	}
	if maxTPM > 0 && e.tpm >= maxTPM {
		return Counts{RPM: e.rpm, TPM: e.tpm, ResetSeconds: s.secondsUntil(now, e.tpmExpires)}, nil
	}

	e.rpm++
	e.rpmExpires = now.Add(s.window)
	return Counts{
		Admitted:     true,
		RPM:          e.rpm,
		TPM:          e.tpm,
		ResetSeconds: int(s.window / time.Second),
	}, nil
}

// AddTokens charges consumed tokens and refreshes the TPM window.
func (s *MemoryStore) AddTokens(_ context.Context, scope string, tokens int) error {
	if tokens <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e := s.entry(scope, now)
	e.tpm += tokens
	e.tpmExpires = now.Add(s.window)
	return nil
}

// entry fetches the scope's counters, zeroing any whose window has lapsed.
func (s *MemoryStore) entry(scope string, now time.Time) *memoryEntry {
	e := s.entries[scope]
	if e == nil {
		e = &memoryEntry{}
		s.entries[scope] = e
	}
	if now.After(e.rpmExpires) {
		e.rpm = 0
	}
	if now.After(e.tpmExpires) {
		e.tpm = 0
	}
	return e
}

func (s *MemoryStore) secondsUntil(now, expires time.Time) int {
	if expires.IsZero() || !expires.After(now) {
		return int(s.window / time.Second)
	}
	secs := int((expires.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
