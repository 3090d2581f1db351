// Package vectorstore implements the Vector Store (C6): dedup-by-hash
// storage of KnowledgeChunks and cosine-similarity search over their
// embeddings, with pluggable back-ends (sqlite, Postgres/pgvector).
package vectorstore

import "time"

// Tier is a chunk's lifecycle class.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// KnowledgeChunk is the atom of retrieval: a stored, summarized, and
// embedded unit derived from one RawEvent.
type KnowledgeChunk struct {
	ID             string
	RawEventID     string
	SourceType     string
	Content        string
	ContentHash    string
	Embedding      []float32
	EmbeddingModel string
	Importance     float64
	Tier           Tier
	AccessCount    int
	CreatedAt      time.Time
	LastAccessedAt *time.Time
	Metadata       map[string]any
}

// Scored pairs a chunk with its similarity to a query vector.
type Scored struct {
	Chunk      KnowledgeChunk
	Similarity float64
}

// SearchOptions filters and bounds a similarity search (spec §4.6).
type SearchOptions struct {
	SourceTypes   []string // empty = all
	Tiers         []Tier   // empty = default {hot, warm}
	MinSimilarity float64  // default 0.7
	TopK          int      // default 20
}

// AccessCount pairs a chunk id with its current access count.
type AccessCount struct {
	ID          string
	AccessCount int
}

// Stats summarizes store contents for the /memory/stats endpoint.
type Stats struct {
	Total    int
	ByTier   map[Tier]int
	BySource map[string]int
}

// Store is the closed operation set every vector-store backend
// implements (spec §4.6).
type Store interface {
	// Store inserts chunk, deduping on ContentHash: if a chunk with the
	// same hash already exists its id is returned unmutated.
	Store(chunk KnowledgeChunk) (id string, err error)

	// Search returns chunks ordered by strictly descending similarity,
	// ties broken by newer CreatedAt then lexicographic id. It does not
	// touch AccessCount or LastAccessedAt; the retrieval service records
	// hits through AccessCache instead.
	Search(queryVector []float32, opts SearchOptions) ([]Scored, error)

	GetByID(id string) (KnowledgeChunk, error)
	GetByIDs(ids []string) ([]KnowledgeChunk, error)
	GetBySource(sourceType string, limit int) ([]KnowledgeChunk, error)
	GetRecent(limit int) ([]KnowledgeChunk, error)

	Stats() (Stats, error)

	// SetTier updates the tier of the given chunk ids, used by the
	// lifecycle demotion task.
	SetTier(ids []string, tier Tier) error

	// IncrementAccessCount adds delta to id's access count and refreshes
	// LastAccessedAt, used by AccessCache's periodic flush (one call per
	// buffered chunk id).
	IncrementAccessCount(id string, delta int) error

	// AccessCounts returns the (id, access_count) of every chunk in
	// fromTier older than olderThan, for the lifecycle task to compute a
	// quantile-based low-access threshold over.
	AccessCounts(fromTier Tier, olderThan time.Time) ([]AccessCount, error)

	Close() error
}
