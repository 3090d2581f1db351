// Package ingest implements the Ingestion Worker (C4): it consumes
// adapter events, deduplicates and persists them to the event log, and
// enqueues them for processing.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/queue"
)

// Event carries the adapter-event fields this worker consumes, declared
// here rather than importing the adapter package's concrete Event type,
// keeping the dependency direction pointing from ingest -> eventlog/queue
// only.
type Event struct {
	Source     string
	EventType  string
	ExternalID string
	Payload    map[string]any
	Metadata   map[string]any
}

// EventLog abstracts the C1 store this worker writes to.
type EventLog interface {
	Insert(e eventlog.RawEvent) (string, error)
}

// JobQueue abstracts the C2 enqueue operation.
type JobQueue interface {
	Add(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) (string, error)
}

// ProcessingJob is the payload enqueued onto the "processing" queue.
type ProcessingJob struct {
	RawEventID string `json:"raw_event_id"`
}

// Worker consumes a channel of adapter events (spec §4.4: "typically via
// an in-process channel and a queue").
type Worker struct {
	log    EventLog
	jobs   JobQueue
	logger *slog.Logger
}

func NewWorker(log EventLog, jobs JobQueue) *Worker {
	return &Worker{log: log, jobs: jobs, logger: slog.Default()}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := w.Ingest(ctx, ev); err != nil {
				w.logger.Warn("ingest failed", "source", ev.Source, "error", err)
			}
		}
	}
}

// Ingest applies the dedup-then-enqueue contract of spec §4.4 to a
// single event. A duplicate is treated as success (§7).
func (w *Worker) Ingest(ctx context.Context, ev Event) error {
	id, err := w.log.Insert(eventlog.RawEvent{
		Source:     ev.Source,
		EventType:  ev.EventType,
		ExternalID: ev.ExternalID,
		Payload:    ev.Payload,
		Metadata:   ev.Metadata,
	})
	if herrors.OfKind(err, herrors.KindDuplicate) {
		w.logger.Debug("dropped duplicate event", "source", ev.Source, "external_id", ev.ExternalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("staging raw event: %w", err)
	}

	if _, err := w.jobs.Add(ctx, queue.QueueProcessing, ProcessingJob{RawEventID: id}, queue.EnqueueOptions{}); err != nil {
		return fmt.Errorf("enqueuing processing job for %s: %w", id, err)
	}
	return nil
}
