package agent

import (
	"context"

	"github.com/kalambet/hivemind/internal/retrieval"
)

const defaultToolLimit = 10

// SearchMemoryParams are the parameters for search_memory.
type SearchMemoryParams struct {
	Query string `json:"query" jsonschema:"required,description=Natural-language search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return"`
}

// NewSearchMemoryTool wraps Retriever.Search as a callable tool.
func NewSearchMemoryTool(retriever *retrieval.Retriever) *Tool {
	return NewTool("search_memory", "Semantic search over stored memory chunks.", "memory",
		func(ctx context.Context, p SearchMemoryParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = defaultToolLimit
			}
			return retriever.Search(ctx, p.Query, retrieval.Options{TopK: limit})
		})
}

// GetRecentEventsParams are the parameters for get_recent_events.
type GetRecentEventsParams struct {
	Source string `json:"source,omitempty" jsonschema:"description=Restrict to this source type"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return"`
}

// NewGetRecentEventsTool wraps Retriever.GetRecent as a callable tool.
func NewGetRecentEventsTool(retriever *retrieval.Retriever) *Tool {
	return NewTool("get_recent_events", "Fetch the most recently stored memory chunks, optionally filtered by source.", "memory",
		func(ctx context.Context, p GetRecentEventsParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = defaultToolLimit
			}
			return retriever.GetRecent(p.Source, limit)
		})
}

// FindSimilarParams are the parameters for find_similar.
type FindSimilarParams struct {
	ChunkID string `json:"chunkId" jsonschema:"required,description=Id of the anchor chunk"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return"`
}

// NewFindSimilarTool wraps Retriever.FindSimilar as a callable tool.
func NewFindSimilarTool(retriever *retrieval.Retriever) *Tool {
	return NewTool("find_similar", "Find memory chunks similar to a known chunk, excluding the chunk itself.", "memory",
		func(ctx context.Context, p FindSimilarParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = defaultToolLimit
			}
			return retriever.FindSimilar(p.ChunkID, retrieval.Options{TopK: limit})
		})
}

// RegisterMemoryTools registers all built-in memory tools on r.
func RegisterMemoryTools(r *Registry, retriever *retrieval.Retriever) error {
	for _, t := range []*Tool{
		NewSearchMemoryTool(retriever),
		NewGetRecentEventsTool(retriever),
		NewFindSimilarTool(retriever),
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
