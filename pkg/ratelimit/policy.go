package ratelimit

import "time"

// Policy is a named request ceiling.
type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// Built-in policies used at the gateway boundary.
var (
	// LoginPolicy limits admin credential checks: 5 per 15 minutes.
	LoginPolicy = Policy{
		Name:        "login",
		MaxRequests: 5,
		Window:      15 * time.Minute,
	}

	// SubmissionPolicy limits guest RSVP submissions: 10 per hour.
	SubmissionPolicy = Policy{
		Name:        "submission",
		MaxRequests: 10,
		Window:      time.Hour,
	}
)

// Key returns the store identity for id under this policy, so one identity
// has an independent budget per policy.
func (p Policy) Key(id string) string {
	if p.Name == "" {
		return id
	}
	return p.Name + ":" + id
}
