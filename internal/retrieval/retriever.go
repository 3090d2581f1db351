// Package retrieval implements the Retrieval Service (C7): query
// embedding, similarity search, relevance scoring, and optional
// LLM-based reranking on top of the Vector Store.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/vectorstore"
)

const (
	defaultTopK          = 20
	defaultMinSimilarity = 0.5
	defaultImportance    = 0.5
	similarityWeight     = 0.7
	importanceWeight     = 0.3
)

// Result is one scored chunk returned by the retriever.
type Result struct {
	Chunk          vectorstore.KnowledgeChunk
	Similarity     float64
	RelevanceScore float64
}

// Response is the retriever's answer to a search, mirroring spec §4.7.
type Response struct {
	Chunks            []Result
	Query             string
	TotalResults      int
	AverageSimilarity float64
	RetrievedAt       time.Time
}

// Options tunes one Search call.
type Options struct {
	TopK          int
	MinSimilarity float64
	SourceTypes   []string
	Tiers         []vectorstore.Tier
	Rerank        bool
}

// AccessRecorder buffers one hit against chunkID for later batched
// application; vectorstore.AccessCache is the production implementation.
type AccessRecorder interface {
	RecordAccess(chunkID string) error
}

type noOpAccessRecorder struct{}

func (noOpAccessRecorder) RecordAccess(string) error { return nil }

// Retriever is the C7 service: query embedding, similarity search, and
// relevance scoring against the Vector Store.
type Retriever struct {
	store    vectorstore.Store
	embedder llm.Provider
	reranker Reranker
	access   AccessRecorder
	now      func() time.Time
	logger   *slog.Logger
}

func New(store vectorstore.Store, embedder llm.Provider, reranker Reranker, access AccessRecorder) *Retriever {
	if reranker == nil {
		reranker = NoOpReranker{}
	}
	if access == nil {
		access = noOpAccessRecorder{}
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		access:   access,
		now:      time.Now,
		logger:   slog.Default().With("component", "retrieval"),
	}
}

// recordAccesses buffers a hit for every returned chunk (spec §9's
// per-search access accounting); failures are logged, not fatal — a
// missed increment doesn't affect the answer already returned.
func (r *Retriever) recordAccesses(results []Result) {
	for _, res := range results {
		if err := r.access.RecordAccess(res.Chunk.ID); err != nil {
			r.logger.Warn("recording access", "chunk_id", res.Chunk.ID, "error", err)
		}
	}
}

// Search embeds queryText, runs a similarity search, scores relevance,
// and optionally reranks the top candidates (spec §4.7).
func (r *Retriever) Search(ctx context.Context, queryText string, opts Options) (Response, error) {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = defaultMinSimilarity
	}

	queryVector, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return Response{}, err
	}

	scored, err := r.store.Search(queryVector, vectorstore.SearchOptions{
		SourceTypes:   opts.SourceTypes,
		Tiers:         opts.Tiers,
		MinSimilarity: opts.MinSimilarity,
		TopK:          opts.TopK,
	})
	if err != nil {
		return Response{}, err
	}

	results := scoreRelevance(scored)

	if opts.Rerank {
		reranked, rerankErr := r.reranker.Rerank(ctx, queryText, results)
		if rerankErr == nil {
			results = reranked
		}
		// Rerank failure is non-fatal (spec §7): keep the unreranked list.
	}

	r.recordAccesses(results)
	return buildResponse(queryText, results, r.now()), nil
}

func scoreRelevance(scored []vectorstore.Scored) []Result {
	out := make([]Result, len(scored))
	for i, s := range scored {
		importance := s.Chunk.Importance
		if importance == 0 {
			importance = defaultImportance
		}
		out[i] = Result{
			Chunk:          s.Chunk,
			Similarity:     s.Similarity,
			RelevanceScore: similarityWeight*s.Similarity + importanceWeight*importance,
		}
	}
	return out
}

func buildResponse(query string, results []Result, now time.Time) Response {
	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}
	avg := 0.0
	if len(results) > 0 {
		avg = sum / float64(len(results))
	}
	return Response{
		Chunks:            results,
		Query:             query,
		TotalResults:      len(results),
		AverageSimilarity: avg,
		RetrievedAt:       now,
	}
}

// GetByIDs fetches chunks by id.
func (r *Retriever) GetByIDs(ids []string) ([]vectorstore.KnowledgeChunk, error) {
	return r.store.GetByIDs(ids)
}

// Stats summarizes the underlying store for the /memory/stats endpoint.
func (r *Retriever) Stats() (vectorstore.Stats, error) {
	return r.store.Stats()
}

// GetRecent returns the most recently created chunks, optionally
// filtered by source type.
func (r *Retriever) GetRecent(sourceType string, limit int) ([]vectorstore.KnowledgeChunk, error) {
	if sourceType == "" {
		return r.store.GetRecent(limit)
	}
	return r.store.GetBySource(sourceType, limit)
}

// FindSimilar uses chunkID's own stored embedding as the query vector
// and excludes the anchor chunk from the results (spec §4.7).
func (r *Retriever) FindSimilar(chunkID string, opts Options) (Response, error) {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = defaultMinSimilarity
	}

	anchor, err := r.store.GetByID(chunkID)
	if err != nil {
		return Response{}, err
	}

	scored, err := r.store.Search(anchor.Embedding, vectorstore.SearchOptions{
		SourceTypes:   opts.SourceTypes,
		Tiers:         opts.Tiers,
		MinSimilarity: opts.MinSimilarity,
		TopK:          opts.TopK + 1, // +1 to absorb the anchor itself
	})
	if err != nil {
		return Response{}, err
	}

	filtered := make([]vectorstore.Scored, 0, len(scored))
	for _, s := range scored {
		if s.Chunk.ID == chunkID {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) > opts.TopK {
		filtered = filtered[:opts.TopK]
	}

	results := scoreRelevance(filtered)
	r.recordAccesses(results)
	return buildResponse(anchor.Content, results, r.now()), nil
}
