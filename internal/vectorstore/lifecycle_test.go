package vectorstore

import (
	"testing"
	"time"
)

type fakeStore struct {
	accessCounts map[Tier][]AccessCount
	tierUpdates  map[string]Tier
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accessCounts: make(map[Tier][]AccessCount),
		tierUpdates:  make(map[string]Tier),
	}
}

func (f *fakeStore) Store(chunk KnowledgeChunk) (string, error) { return "", nil }
func (f *fakeStore) Search(queryVector []float32, opts SearchOptions) ([]Scored, error) {
	return nil, nil
}
func (f *fakeStore) GetByID(id string) (KnowledgeChunk, error)             { return KnowledgeChunk{}, nil }
func (f *fakeStore) GetByIDs(ids []string) ([]KnowledgeChunk, error)       { return nil, nil }
func (f *fakeStore) GetBySource(sourceType string, limit int) ([]KnowledgeChunk, error) {
	return nil, nil
}
func (f *fakeStore) GetRecent(limit int) ([]KnowledgeChunk, error) { return nil, nil }
func (f *fakeStore) Stats() (Stats, error)                        { return Stats{}, nil }

func (f *fakeStore) SetTier(ids []string, tier Tier) error {
	for _, id := range ids {
		f.tierUpdates[id] = tier
	}
	return nil
}

func (f *fakeStore) IncrementAccessCount(id string, delta int) error { return nil }

func (f *fakeStore) AccessCounts(fromTier Tier, olderThan time.Time) ([]AccessCount, error) {
	return f.accessCounts[fromTier], nil
}

func (f *fakeStore) Close() error { return nil }

var _ Store = (*fakeStore)(nil)

func TestQuantileNearestRank(t *testing.T) {
	counts := []AccessCount{{ID: "a", AccessCount: 0}, {ID: "b", AccessCount: 1}, {ID: "c", AccessCount: 5}, {ID: "d", AccessCount: 10}}
	got := quantile(counts, 0.25)
	if got != 0 {
		t.Errorf("quantile(0.25) = %d, want 0", got)
	}
}

func TestLifecycleDemotesLowAccessChunks(t *testing.T) {
	store := newFakeStore()
	store.accessCounts[TierHot] = []AccessCount{
		{ID: "low-1", AccessCount: 0},
		{ID: "low-2", AccessCount: 0},
		{ID: "high", AccessCount: 50},
	}

	l := NewLifecycle(store, DefaultLifecycleConfig())
	l.runOnce()

	if store.tierUpdates["low-1"] != TierWarm {
		t.Errorf("low-1 tier = %s, want warm", store.tierUpdates["low-1"])
	}
	if _, demoted := store.tierUpdates["high"]; demoted {
		t.Error("high-access chunk should not be demoted")
	}
}

func TestLifecycleNoOpWhenEmpty(t *testing.T) {
	store := newFakeStore()
	l := NewLifecycle(store, DefaultLifecycleConfig())
	l.runOnce()

	if len(store.tierUpdates) != 0 {
		t.Errorf("expected no tier updates, got %v", store.tierUpdates)
	}
}
