// Package ratelimit implements a fixed-window request counter keyed by caller
// identity. It is consulted at the boundary of sensitive operations (credential
// checks, submissions) before any work is dispatched.
package ratelimit

import (
	"time"
)

// Record is the per-identity window state.
type Record struct {
	// Count is the number of admitted requests in the current window.
	Count int `json:"count"`

	// WindowResetAt is when the current window ends.
	WindowResetAt time.Time `json:"window_reset_at"`
}

// IsExpired returns true once the window has elapsed (now >= WindowResetAt).
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.WindowResetAt)
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool `json:"allowed"`

	// Limit is the maximum number of requests per window.
	Limit int `json:"limit"`

	// Count is the number of admitted requests in the window, this one included.
	Count int `json:"count"`

	// ResetAt is when the window ends and the budget is restored.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the requests left in the current window.
func (d Decision) Remaining() int {
	remaining := d.Limit - d.Count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	duration := d.ResetAt.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// consume applies the fixed-window rule to rec (nil when the identity has no
// record) and returns the record to store plus the decision.
//
//   - no record, or window elapsed: new window with Count = 1, allowed
//   - Count < max: Count++, allowed
//   - otherwise: denied, record unchanged
//
// The fixed window admits up to 2*max requests across a window boundary.
func consume(rec *Record, max int, window time.Duration, now time.Time) (Record, Decision) {
	if rec == nil || rec.IsExpired(now) {
		next := Record{Count: 1, WindowResetAt: now.Add(window)}
		return next, Decision{Allowed: true, Limit: max, Count: 1, ResetAt: next.WindowResetAt}
	}

	if rec.Count < max {
		next := Record{Count: rec.Count + 1, WindowResetAt: rec.WindowResetAt}
		return next, Decision{Allowed: true, Limit: max, Count: next.Count, ResetAt: next.WindowResetAt}
	}

	return *rec, Decision{Allowed: false, Limit: max, Count: rec.Count, ResetAt: rec.WindowResetAt}
}
