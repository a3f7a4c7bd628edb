package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testClock is a manually advanced clock.
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

func newTestCache(clock *testClock) (*Cache, *MemoryStore) {
	store := NewMemoryStore()
	c := New(store, Config{DefaultTTL: 5 * time.Minute, Now: clock.Now}, zerolog.Nop())
	return c, store
}

func TestNew_Defaults(t *testing.T) {
	c := New(NewMemoryStore(), Config{}, zerolog.Nop())
	if c.DefaultTTL() != DefaultTTL {
		t.Errorf("DefaultTTL() = %v, want %v", c.DefaultTTL(), DefaultTTL)
	}
	if c.now == nil {
		t.Error("clock should default to time.Now")
	}
}

func TestNew_PanicOnNilStore(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil store")
		}
	}()
	New(nil, DefaultConfig(), zerolog.Nop())
}

func TestCache_SetAndGet(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(clock)
	ctx := context.Background()

	c.Set(ctx, "k", []byte(`{"name":"Ada"}`))

	value, ok := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if string(value) != `{"name":"Ada"}` {
		t.Errorf("Get() = %s, want {\"name\":\"Ada\"}", value)
	}
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(newTestClock())

	if _, ok := c.Get(context.Background(), "missing"); ok {
		t.Error("Get() hit for missing key")
	}
}

func TestCache_TTLInvariant(t *testing.T) {
	clock := newTestClock()
	c, store := newTestCache(clock)
	ctx := context.Background()

	c.SetWithTTL(ctx, "k", []byte("v"), time.Minute)

	clock.Advance(time.Minute - time.Nanosecond)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() miss before ttl elapsed")
	}

	clock.Advance(time.Nanosecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get() hit at now - storedAt == ttl")
	}

	// Expired entry is evicted on lookup
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d after expired lookup, want 0", store.Len())
	}

	// Still a miss until a new Set
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get() hit after eviction without Set")
	}

	c.SetWithTTL(ctx, "k", []byte("v2"), time.Minute)
	value, ok := c.Get(ctx, "k")
	if !ok || string(value) != "v2" {
		t.Errorf("Get() after re-Set = %q, %v; want v2, true", value, ok)
	}
}

func TestCache_Set_UsesDefaultTTL(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(clock)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))

	clock.Advance(4 * time.Minute)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() miss inside default ttl")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get() hit after default ttl")
	}
}

func TestCache_SetWithTTL_NonPositive(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		t.Run(ttl.String(), func(t *testing.T) {
			c, store := newTestCache(newTestClock())
			ctx := context.Background()

			c.Set(ctx, "k", []byte("old"))
			c.SetWithTTL(ctx, "k", []byte("new"), ttl)

			if _, ok := c.Get(ctx, "k"); ok {
				t.Error("Get() hit after non-positive ttl Set, want miss")
			}
			if store.Len() != 0 {
				t.Errorf("store.Len() = %d, want 0", store.Len())
			}
		})
	}
}

func TestCache_Set_Overwrites(t *testing.T) {
	c, _ := newTestCache(newTestClock())
	ctx := context.Background()

	c.Set(ctx, "k", []byte("one"))
	c.Set(ctx, "k", []byte("two"))

	value, _ := c.Get(ctx, "k")
	if string(value) != "two" {
		t.Errorf("Get() = %q, want two", value)
	}
}

func TestCache_Invalidate_Pattern(t *testing.T) {
	c, _ := newTestCache(newTestClock())
	ctx := context.Background()

	page1 := Key{Endpoint: "rsvps", Operation: "fetchAll", Params: map[string]any{"page": 1}}.String()
	page2 := Key{Endpoint: "rsvps", Operation: "fetchAll", Params: map[string]any{"page": 2}}.String()
	byID := Key{Endpoint: "rsvps", Operation: "fetchById", Params: map[string]any{"id": "7"}}.String()

	c.Set(ctx, page1, []byte("p1"))
	c.Set(ctx, page2, []byte("p2"))
	c.Set(ctx, byID, []byte("item"))

	removed := c.Invalidate(ctx, Key{Endpoint: "rsvps", Operation: "fetchAll"}.Prefix())
	if removed != 2 {
		t.Errorf("Invalidate() removed %d, want 2", removed)
	}

	if _, ok := c.Get(ctx, page1); ok {
		t.Error("page 1 still cached after pattern invalidation")
	}
	if _, ok := c.Get(ctx, page2); ok {
		t.Error("page 2 still cached after pattern invalidation")
	}
	if _, ok := c.Get(ctx, byID); !ok {
		t.Error("fetchById entry removed by fetchAll pattern")
	}
}

func TestCache_Invalidate_All(t *testing.T) {
	c, store := newTestCache(newTestClock())
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))

	if removed := c.Invalidate(ctx, ""); removed != 2 {
		t.Errorf("Invalidate(\"\") removed %d, want 2", removed)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestCache_Sweep(t *testing.T) {
	clock := newTestClock()
	c, store := newTestCache(clock)
	ctx := context.Background()

	c.SetWithTTL(ctx, "short", []byte("1"), time.Minute)
	c.SetWithTTL(ctx, "long", []byte("2"), time.Hour)

	clock.Advance(2 * time.Minute)

	if removed := c.Sweep(ctx); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1", store.Len())
	}
	if _, ok := c.Get(ctx, "long"); !ok {
		t.Error("long-lived entry removed by sweep")
	}
}

func TestCache_StartJanitor(t *testing.T) {
	clock := newTestClock()
	c, store := newTestCache(clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.SetWithTTL(ctx, "k", []byte("v"), time.Minute)
	clock.Advance(time.Hour)

	c.StartJanitor(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not sweep expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(newTestClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{Endpoint: "rsvps", Operation: "fetchAll", Params: map[string]any{"page": i % 4}}.String()
			for j := 0; j < 100; j++ {
				c.Set(ctx, key, []byte("v"))
				c.Get(ctx, key)
				if j%25 == 0 {
					c.Invalidate(ctx, "fetchAll")
				}
			}
		}(i)
	}
	wg.Wait()
}
