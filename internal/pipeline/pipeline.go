// Package pipeline implements the Processing Pipeline (C5): the strict
// enrich -> summarize -> embed -> store sequence a RawEvent passes
// through on its way to becoming a KnowledgeChunk.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

// Pipeline wires together the four stages and runs them inline per job;
// the queue (C2) is what provides both the retry/backoff around a
// failed stage and the concurrency bound across jobs (asynq's worker
// concurrency), so Pipeline itself stays single-threaded per call.
type Pipeline struct {
	events         *eventlog.Store
	store          vectorstore.Store
	summarizer     llm.Provider
	embedder       llm.Provider
	embeddingModel string
	logger         *slog.Logger
}

func New(events *eventlog.Store, store vectorstore.Store, summarizer, embedder llm.Provider, embeddingModel string) (*Pipeline, error) {
	return &Pipeline{
		events:         events,
		store:          store,
		summarizer:     summarizer,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		logger:         slog.Default().With("component", "pipeline"),
	}, nil
}

// Process runs one RawEvent through all four stages synchronously; it is
// the handler the queue worker calls for jobs on the processing queue.
// A summarization failure never aborts the job (spec §4.5.2); an
// embedding or storage failure returns an error so C2 retries the job.
func (p *Pipeline) Process(ctx context.Context, rawEventID string) error {
	raw, err := p.events.GetByID(rawEventID)
	if err != nil {
		return fmt.Errorf("loading raw event %s: %w", rawEventID, err)
	}

	enriched := Enrich(raw)
	summarized := Summarize(ctx, p.summarizer, enriched)
	if summarized.Fallback {
		p.logger.Warn("summarization fell back to truncation", "raw_event_id", rawEventID)
	}

	embedded, err := Embed(ctx, p.embedder, p.embeddingModel, summarized)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", rawEventID, err)
	}

	chunkID, err := StoreChunk(p.store, p.events, embedded)
	if err != nil {
		return fmt.Errorf("storing chunk for %s: %w", rawEventID, err)
	}

	p.logger.Info("processed raw event", "raw_event_id", rawEventID, "chunk_id", chunkID)
	return nil
}
