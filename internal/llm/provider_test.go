package llm

import (
	"errors"
	"testing"

	"github.com/kalambet/hivemind/internal/herrors"
)

func TestUnsupportedIsHerrorsUnsupported(t *testing.T) {
	err := unsupported("anthropic", OpEmbed)
	if !herrors.OfKind(err, herrors.KindUnsupported) {
		t.Fatalf("unsupported() should be KindUnsupported, got %v", err)
	}
}

func TestRateLimitedCarriesRetryAfterDetail(t *testing.T) {
	err := RateLimited("openai", 30)
	if !herrors.OfKind(err, herrors.KindRateLimited) {
		t.Fatalf("RateLimited() should be KindRateLimited, got %v", err)
	}
	var herr *herrors.Error
	if !errors.As(err, &herr) {
		t.Fatalf("RateLimited() should be a *herrors.Error, got %T", err)
	}
	if got := herr.Details["retry_after_seconds"]; got != 30 {
		t.Errorf("Details[retry_after_seconds] = %v, want 30", got)
	}
}

func TestUnauthenticatedKind(t *testing.T) {
	err := Unauthenticated("google")
	if !herrors.OfKind(err, herrors.KindUnauthenticated) {
		t.Fatalf("Unauthenticated() should be KindUnauthenticated, got %v", err)
	}
}

func TestUpstreamKind(t *testing.T) {
	err := Upstream("ollama", "connection refused")
	if !herrors.OfKind(err, herrors.KindUpstream) {
		t.Fatalf("Upstream() should be KindUpstream, got %v", err)
	}
}
