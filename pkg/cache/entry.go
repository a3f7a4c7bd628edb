package cache

import (
	"time"
)

// Entry represents a cached read result.
type Entry struct {
	// Value is the JSON-encoded result
	Value []byte `json:"value"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`

	// TTL is how long the entry stays valid after StoredAt
	TTL time.Duration `json:"ttl"`
}

// IsExpired reports whether the entry is no longer valid at now.
// An entry is valid iff now - StoredAt < TTL.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// ExpiresAt returns the first instant at which the entry is expired.
func (e *Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Remaining returns the time left until expiration.
// Returns 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	ttl := e.ExpiresAt().Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
