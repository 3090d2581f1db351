package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/hivemind/internal/llm"
)

// Summarized is the output of the summarization stage (C5.2).
type Summarized struct {
	Enriched
	Summary    string
	TokensUsed int
	Fallback   bool
}

const summaryMaxTokens = 200
const summaryTemperature = 0.3

// promptSum builds Prompt P-SUM (spec §6): source tag, event type,
// extracted text, and derived entities, asking for a searchable summary.
func promptSum(e Enriched) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nEvent type: %s\n\n", e.RawEvent.Source, e.RawEvent.EventType)
	b.WriteString("Text:\n")
	b.WriteString(e.ExtractedText)
	if len(e.Entities.Mentions) > 0 {
		fmt.Fprintf(&b, "\n\nMentions: %s", strings.Join(e.Entities.Mentions, ", "))
	}
	if len(e.Entities.Keywords) > 0 {
		fmt.Fprintf(&b, "\nKeywords: %s", strings.Join(e.Entities.Keywords, ", "))
	}
	b.WriteString("\n\nWrite a searchable summary of at most 100 words that preserves who, what, and why, and keeps technical terms verbatim.")
	return b.String()
}

// Summarize calls the configured provider with P-SUM. On any provider
// failure it falls back to a truncation summary rather than dropping
// the event (spec §4.5.2, scenario 3).
func Summarize(ctx context.Context, provider llm.Provider, e Enriched) Summarized {
	text, err := provider.Complete(ctx, promptSum(e), llm.CompletionOptions{
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		fallback := truncateSummary(e.ExtractedText)
		return Summarized{
			Enriched:   e,
			Summary:    fallback,
			TokensUsed: 0,
			Fallback:   true,
		}
	}

	tokens, _ := provider.CountTokens(text)
	return Summarized{Enriched: e, Summary: strings.TrimSpace(text), TokensUsed: tokens}
}

const truncateLimit = 200

// truncateSummary cuts text to at most truncateLimit characters at a
// word boundary and appends an ellipsis.
func truncateSummary(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= truncateLimit {
		return text
	}
	cut := text[:truncateLimit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "..."
}
