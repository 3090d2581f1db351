package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/hivemind/internal/llm"
)

const (
	rerankPrefixLen     = 10
	rerankTruncateChars = 200
	defaultRerankTimeout = 5 * time.Second
)

// Reranker re-orders retrieval results by query relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result) ([]Result, error)
}

// NoOpReranker passes results through unchanged.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ string, results []Result) ([]Result, error) {
	return results, nil
}

// LLMReranker implements prompt P-RERANK (spec §6): the LLM is asked for
// a comma-separated permutation of indices into the top-rerankPrefixLen
// candidates, most relevant first.
type LLMReranker struct {
	provider llm.Provider
	timeout  time.Duration
}

func NewLLMReranker(provider llm.Provider, timeout time.Duration) *LLMReranker {
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}
	return &LLMReranker{provider: provider, timeout: timeout}
}

// Rerank reorders the first rerankPrefixLen results by LLM judgment and
// appends the remainder unchanged. Any LLM or parse failure degrades
// gracefully to the original order (spec §7: rerank failure is non-fatal).
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	prefixLen := rerankPrefixLen
	if prefixLen > len(results) {
		prefixLen = len(results)
	}
	prefix := results[:prefixLen]
	rest := results[prefixLen:]

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.provider.Complete(timeoutCtx, promptRerank(query, prefix), llm.CompletionOptions{
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return results, nil
	}

	order := parsePermutation(resp, prefixLen)
	reordered := make([]Result, 0, len(results))
	for _, idx := range order {
		reordered = append(reordered, prefix[idx])
	}
	reordered = append(reordered, rest...)
	return reordered, nil
}

// promptRerank builds Prompt P-RERANK: the query plus an enumerated list
// of truncated chunk texts, asking for a permutation of indices.
func promptRerank(query string, prefix []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	b.WriteString("Rank the following passages by relevance to the query, most relevant first.\n")
	for i, r := range prefix {
		fmt.Fprintf(&b, "[%d] %s\n", i, truncate(r.Chunk.Content, rerankTruncateChars))
	}
	b.WriteString("\nRespond with only a comma-separated list of the indices in ranked order, e.g. \"2,0,1\".")
	return b.String()
}

func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "…"
}

var integerRe = regexp.MustCompile(`\d+`)

// parsePermutation extracts integers from resp in order, keeping the
// first occurrence of each valid index in [0, n) and dropping the rest.
// Indices resp never mentions are appended afterward in their original
// order, so a malformed response degrades to the identity permutation.
func parsePermutation(resp string, n int) []int {
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)

	for _, tok := range integerRe.FindAllString(resp, -1) {
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}

	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}
