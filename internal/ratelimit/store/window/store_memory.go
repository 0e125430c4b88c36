package window

import (
	"context"
	"sync"
	"time"

	"ingressgw/internal/ratelimit/models"
)

// InMemoryStore implements a fixed-window counter per key.
// A window starts at the first increment after the previous one ended and is not
// aligned to wall-clock minutes, so up to 2x limit may pass across a boundary.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	start time.Time
	count int
}

type Option func(*InMemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment counts one attempt against key. The window resets when now falls
// outside [start, start+window).
func (s *InMemoryStore) Increment(_ context.Context, key string, limit int, window time.Duration) (*models.AdmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil {
		w = &fixedWindow{start: now}
		s.windows[key] = w
	}
	if now.Before(w.start) || !now.Before(w.start.Add(window)) {
		w.start = now
		w.count = 0
	}
	w.count++

	return models.NewAdmissionResult(w.count, limit, w.start, window), nil
}

// Reset clears the counter for key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Count returns the attempts recorded in key's current window.
func (s *InMemoryStore) Count(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[key]
	if w == nil {
		return 0, nil
	}
	now := s.now()
	if now.Before(w.start) || !now.Before(w.start.Add(window)) {
		return 0, nil
	}
	return w.count, nil
}
