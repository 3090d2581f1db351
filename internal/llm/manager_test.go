package llm

import (
	"context"
	"testing"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string                     { return s.name }
func (s *stubProvider) Supports(op Operation) bool        { return true }
func (s *stubProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	return "", nil
}
func (s *stubProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	return ChatResponse{}, nil
}
func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (s *stubProvider) CountTokens(text string) (int, error) { return 0, nil }

func TestManagerGetUnregistered(t *testing.T) {
	m := NewManager()
	if _, err := m.Get("anthropic"); err == nil {
		t.Fatal("Get() on unregistered provider should error")
	}
}

func TestManagerGetRegistered(t *testing.T) {
	m := NewManager()
	m.Register(&stubProvider{name: "openai"})

	p, err := m.Get("openai")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
}

func TestManagerGetWithFallbackPrefersRegisteredPreferred(t *testing.T) {
	m := NewManager()
	m.Register(&stubProvider{name: "anthropic"})
	m.Register(&stubProvider{name: "openai"})

	p, err := m.GetWithFallback("openai")
	if err != nil {
		t.Fatalf("GetWithFallback() error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
}

func TestManagerGetWithFallbackFallsBackToFirstRegistered(t *testing.T) {
	m := NewManager()
	m.Register(&stubProvider{name: "anthropic"})
	m.Register(&stubProvider{name: "openai"})

	p, err := m.GetWithFallback("google")
	if err != nil {
		t.Fatalf("GetWithFallback() error: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q, want anthropic (first registered)", p.Name())
	}
}

func TestManagerGetWithFallbackNoProviders(t *testing.T) {
	m := NewManager()
	if _, err := m.GetWithFallback("anthropic"); err == nil {
		t.Fatal("GetWithFallback() with no registered providers should error")
	}
}
