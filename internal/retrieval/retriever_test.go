package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Name() string               { return "fake-embed" }
func (f *fakeEmbedder) Supports(llm.Operation) bool { return true }
func (f *fakeEmbedder) Complete(context.Context, string, llm.CompletionOptions) (string, error) {
	return "", nil
}
func (f *fakeEmbedder) Chat(context.Context, []llm.Message, llm.ChatOptions) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, nil
}
func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) CountTokens(string) (int, error) { return 0, nil }

type fakeVectorStore struct {
	searchResults []vectorstore.Scored
	searchErr     error
	byID          map[string]vectorstore.KnowledgeChunk
	byIDErr       error
	lastOpts      vectorstore.SearchOptions
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byID: make(map[string]vectorstore.KnowledgeChunk)}
}

func (f *fakeVectorStore) Store(vectorstore.KnowledgeChunk) (string, error) { return "", nil }
func (f *fakeVectorStore) Search(vec []float32, opts vectorstore.SearchOptions) ([]vectorstore.Scored, error) {
	f.lastOpts = opts
	return f.searchResults, f.searchErr
}
func (f *fakeVectorStore) GetByID(id string) (vectorstore.KnowledgeChunk, error) {
	if f.byIDErr != nil {
		return vectorstore.KnowledgeChunk{}, f.byIDErr
	}
	c, ok := f.byID[id]
	if !ok {
		return vectorstore.KnowledgeChunk{}, errors.New("not found")
	}
	return c, nil
}
func (f *fakeVectorStore) GetByIDs(ids []string) ([]vectorstore.KnowledgeChunk, error) {
	out := make([]vectorstore.KnowledgeChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeVectorStore) GetBySource(string, int) ([]vectorstore.KnowledgeChunk, error) { return nil, nil }
func (f *fakeVectorStore) GetRecent(int) ([]vectorstore.KnowledgeChunk, error)            { return nil, nil }
func (f *fakeVectorStore) Stats() (vectorstore.Stats, error)                              { return vectorstore.Stats{}, nil }
func (f *fakeVectorStore) SetTier([]string, vectorstore.Tier) error                       { return nil }
func (f *fakeVectorStore) IncrementAccessCount(string, int) error                         { return nil }
func (f *fakeVectorStore) AccessCounts(vectorstore.Tier, time.Time) ([]vectorstore.AccessCount, error) {
	return nil, nil
}
func (f *fakeVectorStore) Close() error { return nil }

func chunk(id string, importance float64) vectorstore.KnowledgeChunk {
	return vectorstore.KnowledgeChunk{ID: id, SourceType: "slack", Content: "content " + id, Importance: importance}
}

func TestSearchComputesRelevanceScore(t *testing.T) {
	store := newFakeVectorStore()
	store.searchResults = []vectorstore.Scored{
		{Chunk: chunk("a", 0.8), Similarity: 0.9},
	}
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, nil, nil)

	resp, err := r.Search(context.Background(), "query", Options{})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(resp.Chunks))
	}
	want := 0.7*0.9 + 0.3*0.8
	if got := resp.Chunks[0].RelevanceScore; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("RelevanceScore = %v, want %v", got, want)
	}
}

func TestSearchDefaultsImportanceWhenUnset(t *testing.T) {
	store := newFakeVectorStore()
	store.searchResults = []vectorstore.Scored{
		{Chunk: chunk("a", 0), Similarity: 1.0},
	}
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, nil, nil)

	resp, err := r.Search(context.Background(), "query", Options{})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	want := 0.7*1.0 + 0.3*0.5
	if got := resp.Chunks[0].RelevanceScore; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("RelevanceScore = %v, want %v (importance defaults to 0.5)", got, want)
	}
}

func TestSearchAppliesDefaultOptions(t *testing.T) {
	store := newFakeVectorStore()
	r := New(store, &fakeEmbedder{vec: []float32{1}}, nil, nil)

	if _, err := r.Search(context.Background(), "q", Options{}); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if store.lastOpts.TopK != defaultTopK {
		t.Errorf("TopK = %d, want default %d", store.lastOpts.TopK, defaultTopK)
	}
	if store.lastOpts.MinSimilarity != defaultMinSimilarity {
		t.Errorf("MinSimilarity = %v, want default %v", store.lastOpts.MinSimilarity, defaultMinSimilarity)
	}
}

func TestSearchPropagatesEmbedError(t *testing.T) {
	store := newFakeVectorStore()
	r := New(store, &fakeEmbedder{err: errors.New("embed failed")}, nil, nil)

	if _, err := r.Search(context.Background(), "q", Options{}); err == nil {
		t.Fatal("Search() error = nil, want propagated embed error")
	}
}

type errorReranker struct{}

func (errorReranker) Rerank(context.Context, string, []Result) ([]Result, error) {
	return nil, errors.New("rerank exploded")
}

func TestSearchFallsBackToUnrerankedOnRerankFailure(t *testing.T) {
	store := newFakeVectorStore()
	store.searchResults = []vectorstore.Scored{
		{Chunk: chunk("a", 0.5), Similarity: 0.9},
		{Chunk: chunk("b", 0.5), Similarity: 0.8},
	}
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, errorReranker{}, nil)

	resp, err := r.Search(context.Background(), "q", Options{Rerank: true})
	if err != nil {
		t.Fatalf("Search() error: %v, want rerank failure to be non-fatal", err)
	}
	if len(resp.Chunks) != 2 || resp.Chunks[0].Chunk.ID != "a" {
		t.Errorf("expected unreranked order preserved, got %+v", resp.Chunks)
	}
}

func TestFindSimilarExcludesAnchor(t *testing.T) {
	store := newFakeVectorStore()
	store.byID["anchor"] = vectorstore.KnowledgeChunk{ID: "anchor", Embedding: []float32{1, 0}, Content: "anchor text"}
	store.searchResults = []vectorstore.Scored{
		{Chunk: chunk("anchor", 0.5), Similarity: 1.0},
		{Chunk: chunk("b", 0.5), Similarity: 0.7},
	}
	r := New(store, &fakeEmbedder{}, nil, nil)

	resp, err := r.FindSimilar("anchor", Options{})
	if err != nil {
		t.Fatalf("FindSimilar() error: %v", err)
	}
	for _, c := range resp.Chunks {
		if c.Chunk.ID == "anchor" {
			t.Fatal("FindSimilar() included the anchor chunk in results")
		}
	}
	if len(resp.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(resp.Chunks))
	}
}

func TestFindSimilarPropagatesGetByIDError(t *testing.T) {
	store := newFakeVectorStore()
	store.byIDErr = errors.New("not found")
	r := New(store, &fakeEmbedder{}, nil, nil)

	if _, err := r.FindSimilar("missing", Options{}); err == nil {
		t.Fatal("FindSimilar() error = nil, want propagated lookup error")
	}
}
