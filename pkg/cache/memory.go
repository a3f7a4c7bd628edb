package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store backed by a map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Get returns a copy of the entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Set stores a copy of entry under key.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	s.entries[key] = *entry
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// DeleteMatching removes every key containing substr.
func (s *MemoryStore) DeleteMatching(_ context.Context, substr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if substr == "" {
		n := len(s.entries)
		s.entries = make(map[string]Entry)
		return n, nil
	}

	removed := 0
	for key := range s.entries {
		if strings.Contains(key, substr) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Sweep removes entries expired at now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
