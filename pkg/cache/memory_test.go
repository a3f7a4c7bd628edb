package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_GetMiss(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{Value: []byte("v"), StoredAt: time.Now(), TTL: time.Minute}
	if err := store.Set(ctx, "k", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.TTL = time.Hour

	again, _ := store.Get(ctx, "k")
	if again.TTL != time.Minute {
		t.Errorf("stored TTL = %v after mutating returned entry, want 1m", again.TTL)
	}
}

func TestMemoryStore_DeleteMatching(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"rsvp:a:fetchAll", "rsvp:a:fetchAll:page=1", "rsvp:a:search"} {
		_ = store.Set(ctx, key, &Entry{TTL: time.Minute})
	}

	n, err := store.DeleteMatching(ctx, "fetchAll")
	if err != nil {
		t.Fatalf("DeleteMatching() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteMatching() = %d, want 2", n)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	n, _ = store.DeleteMatching(ctx, "")
	if n != 1 || store.Len() != 0 {
		t.Errorf("DeleteMatching(\"\") = %d, Len() = %d; want 1, 0", n, store.Len())
	}
}

func TestMemoryStore_Delete_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete() on missing key error = %v", err)
	}
}
