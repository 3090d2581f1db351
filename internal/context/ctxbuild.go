// Package ctxbuild implements the Context Builder (C8): assembling a
// token-bounded prompt from retrieval results and conversation history
// for the agent loop (spec §4.8).
package ctxbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/hivemind/internal/llm"
	"github.com/kalambet/hivemind/internal/retrieval"
)

const (
	defaultMaxTokens          = 8000
	defaultMaxHistory         = 10
	defaultRelevanceThreshold = 0.6
	maxCandidateChunks        = 30
	formattingReserve         = 500
)

// Options tunes one Build call.
type Options struct {
	MaxTokens          int
	SystemPrompt       string
	IncludeHistory     bool
	MaxHistory         int
	RelevanceThreshold float64
}

// Metadata reports what the builder actually used.
type Metadata struct {
	ChunksUsed       int
	TotalTokens      int
	AverageRelevance float64
	Sources          []string
}

// Built is the assembled prompt material handed to the agent loop.
type Built struct {
	SystemPrompt        string
	KnowledgeContext    string
	ConversationHistory []llm.Message
	Metadata            Metadata
}

// Builder wraps a Retriever to produce Built prompts.
type Builder struct {
	retriever *retrieval.Retriever
}

func New(retriever *retrieval.Retriever) *Builder {
	return &Builder{retriever: retriever}
}

// Build implements spec §4.8's algorithm: reserve system-prompt and
// history tokens, retrieve candidate chunks above RelevanceThreshold,
// then greedily add chunks in similarity-descending order until the
// remaining budget (minus a formatting reserve) would be exceeded.
func (b *Builder) Build(ctx context.Context, query string, history []llm.Message, opts Options) (Built, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	if opts.RelevanceThreshold <= 0 {
		opts.RelevanceThreshold = defaultRelevanceThreshold
	}

	remaining := opts.MaxTokens - llm.EstimateTokens(opts.SystemPrompt)

	var selectedHistory []llm.Message
	if opts.IncludeHistory {
		selectedHistory = lastN(history, opts.MaxHistory)
		for _, m := range selectedHistory {
			remaining -= llm.EstimateTokens(m.Content)
		}
	}

	resp, err := b.retriever.Search(ctx, query, retrieval.Options{TopK: maxCandidateChunks})
	if err != nil {
		return Built{}, err
	}

	candidates := make([]retrieval.Result, 0, len(resp.Chunks))
	for _, r := range resp.Chunks {
		if r.RelevanceScore >= opts.RelevanceThreshold {
			candidates = append(candidates, r)
		}
	}

	budget := remaining - formattingReserve

	var selected []retrieval.Result
	var entries []string
	usedTokens := 0
	for _, r := range candidates {
		candidateEntries := append(append([]string{}, entries...), formatChunk(r))
		candidateText := strings.Join(candidateEntries, "\n---\n")
		tokens := llm.EstimateTokens(candidateText)
		if tokens > budget {
			break
		}
		entries = candidateEntries
		usedTokens = tokens
		selected = append(selected, r)
	}

	return Built{
		SystemPrompt:        opts.SystemPrompt,
		KnowledgeContext:    strings.Join(entries, "\n---\n"),
		ConversationHistory: selectedHistory,
		Metadata:            buildMetadata(selected, usedTokens, opts.SystemPrompt, selectedHistory),
	}, nil
}

func formatChunk(r retrieval.Result) string {
	return fmt.Sprintf("[Source: %s | Relevance: %.0f%%]\n\n%s", r.Chunk.SourceType, r.RelevanceScore*100, r.Chunk.Content)
}

func buildMetadata(selected []retrieval.Result, chunkTokens int, systemPrompt string, history []llm.Message) Metadata {
	sourceSet := make(map[string]struct{})
	var relevanceSum float64
	for _, r := range selected {
		sourceSet[r.Chunk.SourceType] = struct{}{}
		relevanceSum += r.RelevanceScore
	}

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	avgRelevance := 0.0
	if len(selected) > 0 {
		avgRelevance = relevanceSum / float64(len(selected))
	}

	total := llm.EstimateTokens(systemPrompt) + chunkTokens
	for _, m := range history {
		total += llm.EstimateTokens(m.Content)
	}

	return Metadata{
		ChunksUsed:       len(selected),
		TotalTokens:      total,
		AverageRelevance: avgRelevance,
		Sources:          sources,
	}
}

func lastN(messages []llm.Message, n int) []llm.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
