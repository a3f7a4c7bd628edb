package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *testClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	limiter := NewLimiter(store, Config{Now: clock.Now}, zerolog.Nop())
	return limiter, store
}

// failingStore always errors.
type failingStore struct{}

func (failingStore) Take(context.Context, string, int, time.Duration, time.Time) (Decision, error) {
	return Decision{}, errors.New("store down")
}

func (failingStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(NewMemoryStore(), Config{}, zerolog.Nop())
	if l.sweepInterval != DefaultSweepInterval {
		t.Errorf("sweepInterval = %v, want %v", l.sweepInterval, DefaultSweepInterval)
	}
	if l.now == nil {
		t.Error("clock should default to time.Now")
	}
}

func TestNewLimiter_PanicOnNilStore(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewLimiter should panic with nil store")
		}
	}()
	NewLimiter(nil, DefaultConfig(), zerolog.Nop())
}

func TestLimiter_WindowReset(t *testing.T) {
	clock := newTestClock()
	limiter, store := newTestLimiter(clock)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := limiter.Allow(ctx, "X", 5, 15*time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if d.Count != i {
			t.Errorf("request %d Count = %d, want %d", i, d.Count, i)
		}
		clock.Advance(time.Minute)
	}

	denied := limiter.Allow(ctx, "X", 5, 15*time.Minute)
	if denied.Allowed {
		t.Fatal("6th request allowed, want denied")
	}
	wantReset := time.Date(2026, 6, 20, 12, 15, 0, 0, time.UTC)
	if !denied.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", denied.ResetAt, wantReset)
	}

	// Denials do not consume budget
	rec, _ := store.Record("X")
	if rec.Count != 5 {
		t.Errorf("Count after denial = %d, want 5", rec.Count)
	}

	clock.Advance(15 * time.Minute)

	fresh := limiter.Allow(ctx, "X", 5, 15*time.Minute)
	if !fresh.Allowed {
		t.Fatal("request after window denied, want allowed")
	}
	if fresh.Count != 1 {
		t.Errorf("Count after reset = %d, want 1", fresh.Count)
	}
}

func TestLimiter_IdentityIsolation(t *testing.T) {
	limiter, _ := newTestLimiter(newTestClock())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "X", 3, time.Hour)
	}
	if limiter.Allow(ctx, "X", 3, time.Hour).Allowed {
		t.Fatal("X should be exhausted")
	}

	for i := 1; i <= 3; i++ {
		d := limiter.Allow(ctx, "Y", 3, time.Hour)
		if !d.Allowed {
			t.Fatalf("Y request %d denied by X's budget", i)
		}
		if d.Count != i {
			t.Errorf("Y Count = %d, want %d", d.Count, i)
		}
	}
}

func TestLimiter_BoundaryBurst(t *testing.T) {
	clock := newTestClock()
	limiter, _ := newTestLimiter(clock)
	ctx := context.Background()
	window := time.Minute

	// Open the window, wait until just before it ends, then spend the budget
	limiter.Allow(ctx, "X", 3, window)
	clock.Advance(window - time.Second)
	limiter.Allow(ctx, "X", 3, window)
	limiter.Allow(ctx, "X", 3, window)

	// Right after the boundary a full new budget is available
	clock.Advance(time.Second)
	admitted := 0
	for i := 0; i < 3; i++ {
		if limiter.Allow(ctx, "X", 3, window).Allowed {
			admitted++
		}
	}
	if admitted != 3 {
		t.Errorf("admitted %d after boundary, want 3 (fixed window)", admitted)
	}
}

func TestLimiter_AllowPolicy_IndependentBudgets(t *testing.T) {
	limiter, _ := newTestLimiter(newTestClock())
	ctx := context.Background()

	for i := 0; i < LoginPolicy.MaxRequests; i++ {
		if !limiter.AllowPolicy(ctx, "10.0.0.1", LoginPolicy).Allowed {
			t.Fatalf("login attempt %d denied", i+1)
		}
	}
	if limiter.AllowPolicy(ctx, "10.0.0.1", LoginPolicy).Allowed {
		t.Fatal("login attempt over the limit allowed")
	}

	if !limiter.AllowPolicy(ctx, "10.0.0.1", SubmissionPolicy).Allowed {
		t.Error("submission denied because login budget is exhausted")
	}
}

func TestLimiter_FailOpen(t *testing.T) {
	clock := newTestClock()
	limiter := NewLimiter(failingStore{}, Config{Now: clock.Now}, zerolog.Nop())

	d := limiter.Allow(context.Background(), "X", 1, time.Minute)
	if !d.Allowed {
		t.Error("Allow() denied on store failure, want fail-open")
	}
	if !d.ResetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want now+1m", d.ResetAt)
	}
	if n := limiter.Sweep(context.Background()); n != 0 {
		t.Errorf("Sweep() = %d on failing store, want 0", n)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	clock := newTestClock()
	limiter, store := newTestLimiter(clock)
	ctx := context.Background()

	limiter.Allow(ctx, "short", 5, time.Minute)
	limiter.Allow(ctx, "long", 5, time.Hour)

	clock.Advance(2 * time.Minute)

	if removed := limiter.Sweep(ctx); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if _, ok := store.Record("short"); ok {
		t.Error("expired record survived sweep")
	}
	if _, ok := store.Record("long"); !ok {
		t.Error("live record removed by sweep")
	}
}

func TestLimiter_StartSweeper(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore()
	limiter := NewLimiter(store, Config{Now: clock.Now, SweepInterval: 5 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.Allow(ctx, "X", 1, time.Minute)
	clock.Advance(time.Hour)

	limiter.StartSweeper(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not purge expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLimiter_ConcurrentNoLostUpdates(t *testing.T) {
	limiter, store := newTestLimiter(newTestClock())
	ctx := context.Background()

	const max = 50
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(ctx, "X", max, time.Hour).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != max {
		t.Errorf("allowed = %d, want exactly %d", allowed.Load(), max)
	}
	rec, _ := store.Record("X")
	if rec.Count != max {
		t.Errorf("Count = %d, want %d", rec.Count, max)
	}
}
