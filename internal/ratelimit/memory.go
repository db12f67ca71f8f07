package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-window limiter. It keeps the timestamps of
// admitted requests per key and drops those older than the window on each
// check.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time
	log map[string][]time.Time
}

// NewMemory creates an in-memory limiter.
func NewMemory() *Memory {
	return &Memory{
		now: time.Now,
		log: make(map[string][]time.Time),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)

	entries := m.log[key]
	kept := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		m.log[key] = kept
		return false, nil
	}
	m.log[key] = append(kept, now)
	return true, nil
}

// SetClock overrides the time source. Intended for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Compile-time interface check.
var _ Limiter = (*Memory)(nil)
