package ratelimit

import (
	"context"
	"time"
)

// Store holds Records and applies the fixed-window rule atomically.
//
// Implementations must be safe for concurrent use; Take on the same identity
// must be linearizable.
type Store interface {
	// Take performs check-and-consume for identity at now.
	Take(ctx context.Context, identity string, max int, window time.Duration, now time.Time) (Decision, error)

	// Sweep purges records whose window has elapsed at now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
