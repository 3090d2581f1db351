package vectorstore

import (
	"testing"
	"time"
)

type countingStore struct {
	fakeStore
	increments map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{fakeStore: *newFakeStore(), increments: make(map[string]int)}
}

func (c *countingStore) IncrementAccessCount(id string, delta int) error {
	c.increments[id] += delta
	return nil
}

func openTestAccessCache(t *testing.T, store Store) *AccessCache {
	t.Helper()
	c, err := OpenAccessCache("", store, time.Hour)
	if err != nil {
		t.Fatalf("OpenAccessCache() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAccessCacheBuffersAndFlushes(t *testing.T) {
	store := newCountingStore()
	cache := openTestAccessCache(t, store)

	for i := 0; i < 3; i++ {
		if err := cache.RecordAccess("chunk-1"); err != nil {
			t.Fatalf("RecordAccess() error: %v", err)
		}
	}
	if err := cache.RecordAccess("chunk-2"); err != nil {
		t.Fatalf("RecordAccess() error: %v", err)
	}

	if len(store.increments) != 0 {
		t.Fatalf("store should not see increments before Flush, got %v", store.increments)
	}

	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if store.increments["chunk-1"] != 3 {
		t.Errorf("chunk-1 increment = %d, want 3", store.increments["chunk-1"])
	}
	if store.increments["chunk-2"] != 1 {
		t.Errorf("chunk-2 increment = %d, want 1", store.increments["chunk-2"])
	}
}

func TestAccessCacheFlushIsIdempotentWhenEmpty(t *testing.T) {
	store := newCountingStore()
	cache := openTestAccessCache(t, store)

	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush() on empty cache error: %v", err)
	}
	if len(store.increments) != 0 {
		t.Errorf("expected no increments, got %v", store.increments)
	}
}

func TestAccessCacheDoesNotDoubleCountAfterFlush(t *testing.T) {
	store := newCountingStore()
	cache := openTestAccessCache(t, store)

	if err := cache.RecordAccess("chunk-1"); err != nil {
		t.Fatalf("RecordAccess() error: %v", err)
	}
	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if err := cache.Flush(); err != nil {
		t.Fatalf("second Flush() error: %v", err)
	}

	if store.increments["chunk-1"] != 1 {
		t.Errorf("chunk-1 increment = %d, want 1 (no double count)", store.increments["chunk-1"])
	}
}
