package pipeline

import (
	"time"

	"github.com/kalambet/hivemind/internal/eventlog"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

// StoreChunk writes the embedded result as a KnowledgeChunk, deduping
// by content hash, then marks the source RawEvent completed (spec
// §4.5.4). It is idempotent: re-running it for the same event produces
// the same chunk id and leaves the RawEvent's status unchanged.
func StoreChunk(store vectorstore.Store, log *eventlog.Store, e Embedded) (string, error) {
	chunk := vectorstore.KnowledgeChunk{
		RawEventID:     e.RawEvent.ID,
		SourceType:     e.RawEvent.Source,
		Content:        e.Summary,
		ContentHash:    e.ContentHash,
		Embedding:      e.Embedding,
		EmbeddingModel: e.EmbeddingModel,
		Importance:     e.Importance,
		Tier:           vectorstore.TierHot,
		Metadata:       e.Metadata,
	}

	id, err := store.Store(chunk)
	if err != nil {
		return "", err
	}

	if err := log.MarkStatus(e.RawEvent.ID, eventlog.StatusCompleted, time.Now()); err != nil {
		return "", err
	}

	return id, nil
}
