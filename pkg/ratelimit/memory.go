package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps Records in a map guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Take performs check-and-consume for identity.
func (s *MemoryStore) Take(_ context.Context, identity string, max int, window time.Duration, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, decision := consume(s.records[identity], max, window, now)
	if decision.Allowed {
		s.records[identity] = &next
	}
	return decision, nil
}

// Sweep purges expired records.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identity, rec := range s.records {
		if rec.IsExpired(now) {
			delete(s.records, identity)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Record returns a copy of the record for identity.
func (s *MemoryStore) Record(identity string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

var _ Store = (*MemoryStore)(nil)
