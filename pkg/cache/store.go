package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the storage behind a Cache.
//
// Implementations must be safe for concurrent use. Operations on the same key
// must be linearizable.
type Store interface {
	// Get returns the entry for key or ErrCacheMiss. Expiry is checked by the
	// caller, so a store may return an expired entry.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry under key, replacing any existing entry.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes key. Idempotent.
	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key containing substr and returns the number
	// of removed keys. An empty substr removes everything.
	DeleteMatching(ctx context.Context, substr string) (int, error)

	// Sweep removes entries expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
