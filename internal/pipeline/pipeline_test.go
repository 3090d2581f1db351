package pipeline

import (
	"context"
	"testing"

	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/vectorstore"
	"github.com/kalambet/hivemind/internal/vectorstore/sqlitevec"
)

type fakeProvider struct {
	name        string
	chatText    string
	chatErr     error
	embedVec    []float32
	embedErr    error
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) Supports(llm.Operation) bool { return true }
func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	return f.chatText, f.chatErr
}
func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (llm.ChatResponse, error) {
	return llm.ChatResponse{Text: f.chatText}, f.chatErr
}
func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embedVec, f.embedErr
}
func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.embedVec
	}
	return out, f.embedErr
}
func (f *fakeProvider) CountTokens(text string) (int, error) { return len(text) / 4, nil }

func newTestPipeline(t *testing.T, summarizer, embedder llm.Provider) (*Pipeline, *eventlog.Store, vectorstore.Store) {
	t.Helper()
	events, err := eventlog.Open(":memory:")
	if err != nil {
		t.Fatalf("eventlog.Open() error: %v", err)
	}
	t.Cleanup(func() { events.Close() })

	store, err := sqlitevec.Open(":memory:", 3)
	if err != nil {
		t.Fatalf("sqlitevec.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p, err := New(events, store, summarizer, embedder, "test-embed-model")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return p, events, store
}

func TestProcessCreatesKnowledgeChunk(t *testing.T) {
	summarizer := &fakeProvider{name: "sum", chatText: "a JWT related summary"}
	embedder := &fakeProvider{name: "embed", embedVec: []float32{1, 0, 0}}
	p, events, store := newTestPipeline(t, summarizer, embedder)

	id, err := events.Insert(eventlog.RawEvent{
		Source:     "slack",
		EventType:  "message",
		ExternalID: "c1.100",
		Payload:    map[string]any{"text": "We need JWT for the API"},
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	if err := p.Process(context.Background(), id); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("Stats().Total = %d, want 1", stats.Total)
	}

	raw, err := events.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if raw.Status != eventlog.StatusCompleted {
		t.Errorf("Status = %s, want completed", raw.Status)
	}
}

func TestProcessFallsBackOnSummarizerFailure(t *testing.T) {
	summarizer := &fakeProvider{name: "sum", chatErr: context.DeadlineExceeded}
	embedder := &fakeProvider{name: "embed", embedVec: []float32{1, 0, 0}}
	p, events, store := newTestPipeline(t, summarizer, embedder)

	id, err := events.Insert(eventlog.RawEvent{
		Source:    "slack",
		EventType: "message",
		Payload:   map[string]any{"text": "We need JWT for the API and this text goes past two hundred characters so that the truncation summary fallback path in the pipeline actually has enough content to cut at a word boundary and append an ellipsis at the end"},
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	if err := p.Process(context.Background(), id); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	raw, err := events.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if raw.Status != eventlog.StatusCompleted {
		t.Errorf("Status = %s, want completed even on summarizer failure", raw.Status)
	}
}

func TestProcessPropagatesEmbeddingFailure(t *testing.T) {
	summarizer := &fakeProvider{name: "sum", chatText: "a summary"}
	embedder := &fakeProvider{name: "embed", embedErr: context.DeadlineExceeded}
	p, events, _ := newTestPipeline(t, summarizer, embedder)

	id, err := events.Insert(eventlog.RawEvent{
		Source:    "slack",
		EventType: "message",
		Payload:   map[string]any{"text": "some text"},
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	if err := p.Process(context.Background(), id); err == nil {
		t.Fatal("Process() should propagate embedding failure so the queue retries")
	}
}
