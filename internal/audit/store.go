package audit

import (
	"context"
	"sync"
)

// Store is the append-only audit log.
type Store interface {
	Append(ctx context.Context, record Record) error
	Snapshot(ctx context.Context) ([]Record, error)
}

// InMemoryStore keeps records in insertion order for the life of the process.
// Identical records are kept as separate entries.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, record Record) error {
	record = record.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Snapshot returns a copy of every record appended so far. Later appends are not
// visible through the returned slice.
func (s *InMemoryStore) Snapshot(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out, nil
}

// Len reports the number of appended records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
