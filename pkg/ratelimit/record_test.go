package ratelimit

import (
	"testing"
	"time"
)

func TestRecord_IsExpired(t *testing.T) {
	reset := time.Date(2026, 6, 20, 12, 15, 0, 0, time.UTC)
	rec := &Record{Count: 3, WindowResetAt: reset}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before reset", reset.Add(-time.Second), false},
		{"at reset", reset, true},
		{"after reset", reset.Add(time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rec.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecision_RemainingAndRetryAfter(t *testing.T) {
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		decision       Decision
		wantRemaining  int
		wantRetryAfter time.Duration
	}{
		{
			name:           "budget left",
			decision:       Decision{Allowed: true, Limit: 5, Count: 2, ResetAt: now.Add(10 * time.Minute)},
			wantRemaining:  3,
			wantRetryAfter: 10 * time.Minute,
		},
		{
			name:           "exhausted",
			decision:       Decision{Allowed: false, Limit: 5, Count: 5, ResetAt: now.Add(time.Minute)},
			wantRemaining:  0,
			wantRetryAfter: time.Minute,
		},
		{
			name:           "reset in the past",
			decision:       Decision{Allowed: false, Limit: 1, Count: 3, ResetAt: now.Add(-time.Minute)},
			wantRemaining:  0,
			wantRetryAfter: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.decision.Remaining(); got != tt.wantRemaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.wantRemaining)
			}
			if got := tt.decision.RetryAfter(now); got != tt.wantRetryAfter {
				t.Errorf("RetryAfter() = %v, want %v", got, tt.wantRetryAfter)
			}
		})
	}
}

func TestConsume(t *testing.T) {
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	t.Run("no record starts window", func(t *testing.T) {
		next, d := consume(nil, 5, window, now)
		if !d.Allowed || next.Count != 1 || !next.WindowResetAt.Equal(now.Add(window)) {
			t.Errorf("consume(nil) = %+v, %+v", next, d)
		}
	})

	t.Run("inside window increments", func(t *testing.T) {
		rec := &Record{Count: 2, WindowResetAt: now.Add(time.Minute)}
		next, d := consume(rec, 5, window, now)
		if !d.Allowed || next.Count != 3 || !next.WindowResetAt.Equal(rec.WindowResetAt) {
			t.Errorf("consume() = %+v, %+v", next, d)
		}
	})

	t.Run("at limit denies without increment", func(t *testing.T) {
		rec := &Record{Count: 5, WindowResetAt: now.Add(time.Minute)}
		next, d := consume(rec, 5, window, now)
		if d.Allowed {
			t.Error("consume() allowed at limit")
		}
		if next.Count != 5 {
			t.Errorf("Count = %d after denial, want 5", next.Count)
		}
		if !d.ResetAt.Equal(rec.WindowResetAt) {
			t.Errorf("ResetAt = %v, want existing %v", d.ResetAt, rec.WindowResetAt)
		}
	})

	t.Run("elapsed window replaces record", func(t *testing.T) {
		rec := &Record{Count: 5, WindowResetAt: now}
		next, d := consume(rec, 5, window, now)
		if !d.Allowed || next.Count != 1 || !next.WindowResetAt.Equal(now.Add(window)) {
			t.Errorf("consume() = %+v, %+v", next, d)
		}
	})
}

func TestPolicy_Key(t *testing.T) {
	if got := LoginPolicy.Key("10.0.0.1"); got != "login:10.0.0.1" {
		t.Errorf("Key() = %q, want login:10.0.0.1", got)
	}
	if got := (Policy{}).Key("10.0.0.1"); got != "10.0.0.1" {
		t.Errorf("Key() without name = %q, want 10.0.0.1", got)
	}
}

func TestBuiltinPolicies(t *testing.T) {
	if LoginPolicy.MaxRequests != 5 || LoginPolicy.Window != 15*time.Minute {
		t.Errorf("LoginPolicy = %+v, want 5 per 15m", LoginPolicy)
	}
	if SubmissionPolicy.MaxRequests != 10 || SubmissionPolicy.Window != time.Hour {
		t.Errorf("SubmissionPolicy = %+v, want 10 per 1h", SubmissionPolicy)
	}
}
