package eventlog

import (
	"errors"
	"testing"
	"time"

	"github.com/kalambet/hivemind/internal/herrors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetByID(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Insert(RawEvent{
		Source:     "slack",
		EventType:  "message",
		ExternalID: "C1.123",
		Payload:    map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Payload["text"] != "hello" {
		t.Errorf("Payload[text] = %v, want hello", got.Payload["text"])
	}
}

// TestDedupByExternalID verifies the (source, external id) invariant from §3:
// exactly one RawEvent exists for two ingests of the same key.
func TestDedupByExternalID(t *testing.T) {
	s := openTestStore(t)

	first, err := s.Insert(RawEvent{Source: "slack", EventType: "message", ExternalID: "dup-1", Payload: map[string]any{}})
	if err != nil {
		t.Fatalf("first Insert: %v", err)
	}

	second, err := s.Insert(RawEvent{Source: "slack", EventType: "message", ExternalID: "dup-1", Payload: map[string]any{}})
	if !errors.Is(err, herrors.Duplicate) {
		t.Fatalf("second Insert error = %v, want Duplicate", err)
	}
	if second != first {
		t.Errorf("duplicate insert returned id %q, want existing id %q", second, first)
	}

	pending, err := s.GetPending(10)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("GetPending returned %d events, want 1", len(pending))
	}
}

func TestMarkStatusIdempotent(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Insert(RawEvent{Source: "git", EventType: "push", Payload: map[string]any{}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	now := time.Now().UTC()
	if err := s.MarkStatus(id, StatusCompleted, now); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	if err := s.MarkStatus(id, StatusCompleted, now); err != nil {
		t.Fatalf("second MarkStatus: %v", err)
	}

	got, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Fatal("ProcessedAt is nil, want set")
	}
}

func TestMarkStatusUnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.MarkStatus("does-not-exist", StatusFailed, time.Now())
	if !errors.Is(err, herrors.NotFound) {
		t.Fatalf("MarkStatus error = %v, want NotFound", err)
	}
}
