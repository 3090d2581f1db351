package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/queue"
)

type fakeLog struct {
	inserted []eventlog.RawEvent
	dup      bool
}

func (f *fakeLog) Insert(e eventlog.RawEvent) (string, error) {
	if f.dup {
		return "existing-id", herrors.Wrap(herrors.KindDuplicate, "dup", herrors.Duplicate)
	}
	f.inserted = append(f.inserted, e)
	return "new-id", nil
}

type fakeQueue struct {
	added []struct {
		name    string
		payload any
	}
}

func (f *fakeQueue) Add(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) (string, error) {
	f.added = append(f.added, struct {
		name    string
		payload any
	}{name, payload})
	return "job-1", nil
}

func TestIngestEnqueuesProcessingJob(t *testing.T) {
	log := &fakeLog{}
	q := &fakeQueue{}
	w := NewWorker(log, q)

	err := w.Ingest(context.Background(), Event{Source: "slack", EventType: "message", ExternalID: "ext-1"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(log.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(log.inserted))
	}
	if len(q.added) != 1 || q.added[0].name != queue.QueueProcessing {
		t.Fatalf("enqueued %+v, want one job on %s", q.added, queue.QueueProcessing)
	}
	job, ok := q.added[0].payload.(ProcessingJob)
	if !ok || job.RawEventID != "new-id" {
		t.Errorf("payload = %+v, want ProcessingJob{RawEventID: new-id}", q.added[0].payload)
	}
}

func TestIngestDropsDuplicate(t *testing.T) {
	log := &fakeLog{dup: true}
	q := &fakeQueue{}
	w := NewWorker(log, q)

	if err := w.Ingest(context.Background(), Event{Source: "slack", ExternalID: "ext-1"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(q.added) != 0 {
		t.Errorf("enqueued %d jobs for a duplicate, want 0", len(q.added))
	}
}

func TestIngestPropagatesInsertFailure(t *testing.T) {
	log := &failingLog{}
	q := &fakeQueue{}
	w := NewWorker(log, q)

	err := w.Ingest(context.Background(), Event{Source: "slack"})
	if err == nil {
		t.Fatal("expected error")
	}
}

type failingLog struct{}

func (failingLog) Insert(eventlog.RawEvent) (string, error) {
	return "", errors.New("db unavailable")
}
