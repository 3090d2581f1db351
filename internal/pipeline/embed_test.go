package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/kalambet/hivemind/internal/llm"
)

type stubEmbedder struct {
	vec       []float32
	batchVecs [][]float32
	err       error
}

func (s *stubEmbedder) Name() string               { return "stub-embed" }
func (s *stubEmbedder) Supports(llm.Operation) bool { return true }
func (s *stubEmbedder) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return "", nil
}
func (s *stubEmbedder) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, nil
}
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.batchVecs, s.err
}
func (s *stubEmbedder) CountTokens(text string) (int, error) { return len(text) / 4, nil }

func testSummarized(summary string) Summarized {
	return Summarized{Enriched: testEnriched(summary), Summary: summary}
}

func TestEmbedSetsContentHashAndVector(t *testing.T) {
	provider := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	s := testSummarized("a summary of the event")

	got, err := Embed(context.Background(), provider, "test-model", s)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	want := sha256.Sum256([]byte("a summary of the event"))
	if got.ContentHash != hex.EncodeToString(want[:]) {
		t.Errorf("ContentHash = %q, want sha256 of the summary", got.ContentHash)
	}
	if got.EmbeddingModel != "test-model" {
		t.Errorf("EmbeddingModel = %q, want test-model", got.EmbeddingModel)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("Embedding length = %d, want 3", len(got.Embedding))
	}
}

func TestEmbedPropagatesProviderError(t *testing.T) {
	provider := &stubEmbedder{err: errors.New("upstream down")}
	_, err := Embed(context.Background(), provider, "test-model", testSummarized("text"))
	if err == nil {
		t.Fatal("Embed() error = nil, want propagated provider error")
	}
}

func TestEmbedBatchPreservesOrderAndComputesHashPerItem(t *testing.T) {
	provider := &stubEmbedder{batchVecs: [][]float32{{1, 0}, {0, 1}}}
	batch := []Summarized{testSummarized("first"), testSummarized("second")}

	got, err := EmbedBatch(context.Background(), provider, "test-model", batch)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Summary != "first" || got[1].Summary != "second" {
		t.Errorf("EmbedBatch() did not preserve input order: %+v", got)
	}
	if got[0].ContentHash == got[1].ContentHash {
		t.Error("distinct summaries produced the same content hash")
	}
	if got[0].Embedding[0] != 1 || got[1].Embedding[1] != 1 {
		t.Errorf("EmbedBatch() did not preserve per-item embedding vectors: %+v", got)
	}
}

func TestEmbedBatchPropagatesProviderError(t *testing.T) {
	provider := &stubEmbedder{err: errors.New("rate limited")}
	_, err := EmbedBatch(context.Background(), provider, "test-model", []Summarized{testSummarized("x")})
	if err == nil {
		t.Fatal("EmbedBatch() error = nil, want propagated provider error")
	}
}
