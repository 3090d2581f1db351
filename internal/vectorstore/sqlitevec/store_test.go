package sqlitevec

import (
	"testing"
	"time"

	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 3)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func chunk(hash string, embedding []float32) vectorstore.KnowledgeChunk {
	return vectorstore.KnowledgeChunk{
		RawEventID:     "raw-1",
		SourceType:     "slack",
		Content:        "some summary text",
		ContentHash:    hash,
		Embedding:      embedding,
		EmbeddingModel: "test-model",
		Importance:     0.5,
	}
}

func TestStoreAndSearch(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Store(chunk("hash-1", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0}, vectorstore.SearchOptions{MinSimilarity: 0.5, TopK: 5})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(results))
	}
	if results[0].Chunk.ID != id {
		t.Errorf("result id = %s, want %s", results[0].Chunk.ID, id)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("similarity = %f, want ~1.0", results[0].Similarity)
	}
}

func TestStoreDedupByContentHash(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.Store(chunk("dup-hash", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	id2, err := s.Store(chunk("dup-hash", []float32{0, 1, 0}))
	if err != nil {
		t.Fatalf("Store() second call error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("second Store() with same hash returned %s, want %s", id2, id1)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Stats().Total = %d, want 1", stats.Total)
	}
}

func TestSearchOrderingAndMinSimilarity(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Store(chunk("hash-close", []float32{1, 0.1, 0})); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if _, err := s.Store(chunk("hash-far", []float32{0, 0, 1})); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0}, vectorstore.SearchOptions{MinSimilarity: 0.5, TopK: 5})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1 above threshold", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not descending at index %d", i)
		}
	}
}

func TestSearchDoesNotItselfBumpAccessCount(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Store(chunk("hash-access", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	if _, err := s.Search([]float32{1, 0, 0}, vectorstore.SearchOptions{MinSimilarity: 0.5, TopK: 5}); err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	c, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if c.AccessCount != 0 {
		t.Errorf("AccessCount = %d, want 0 — access accounting happens through AccessCache, not Search", c.AccessCount)
	}
}

func TestSetTierAndAccessCounts(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Store(chunk("hash-tier", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	counts, err := s.AccessCounts(vectorstore.TierHot, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("AccessCounts() error: %v", err)
	}
	if len(counts) != 1 || counts[0].ID != id || counts[0].AccessCount != 0 {
		t.Fatalf("AccessCounts() = %+v, want one entry for %s with count 0", counts, id)
	}

	if err := s.SetTier([]string{id}, vectorstore.TierWarm); err != nil {
		t.Fatalf("SetTier() error: %v", err)
	}
	c, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if c.Tier != vectorstore.TierWarm {
		t.Errorf("Tier = %s, want warm", c.Tier)
	}
}

func TestStoreRejectsMismatchedDimension(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Store(chunk("hash-wrong-dim", []float32{1, 0}))
	if !herrors.OfKind(err, herrors.KindValidation) {
		t.Fatalf("Store() error = %v, want herrors.KindValidation", err)
	}
}

func TestIncrementAccessCount(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Store(chunk("hash-inc", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if err := s.IncrementAccessCount(id, 3); err != nil {
		t.Fatalf("IncrementAccessCount() error: %v", err)
	}
	c, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if c.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", c.AccessCount)
	}
	if c.LastAccessedAt == nil {
		t.Error("LastAccessedAt should be set")
	}
}
