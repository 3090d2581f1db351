// Package pipeline implements the Processing Pipeline (C5): a strictly
// ordered per-event sequence of enrichment, summarization, embedding, and
// storage stages, driven by C2 queue jobs.
package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kalambet/hivemind/internal/eventlog"
)

// Enriched is the output of the enrichment stage (spec §4.5.1).
type Enriched struct {
	RawEvent      eventlog.RawEvent
	ExtractedText string
	Entities      Entities
	Importance    float64
	Metadata      map[string]any
}

type Entities struct {
	Users    []string
	Mentions []string
	Links    []string
	Keywords []string
}

var (
	mentionRe = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	linkRe    = regexp.MustCompile(`https?://\S+`)
	tokenRe   = regexp.MustCompile(`[a-z0-9]+`)
)

// Enrich derives an enriched view of a RawEvent deterministically —
// no LLM call, per spec §4.5.1.
func Enrich(e eventlog.RawEvent) Enriched {
	text := extractText(e)
	entities := extractEntities(e, text)
	importance := computeImportance(e, text, entities)

	return Enriched{
		RawEvent:      e,
		ExtractedText: text,
		Entities:      entities,
		Importance:    importance,
		Metadata:      e.Metadata,
	}
}

func extractText(e eventlog.RawEvent) string {
	switch e.Source {
	case "slack":
		if t, ok := e.Payload["text"].(string); ok {
			return t
		}
		return ""
	case "jira":
		title, _ := e.Payload["title"].(string)
		desc, _ := e.Payload["description"].(string)
		return strings.TrimSpace(title + "\n" + desc)
	case "git":
		msg, _ := e.Payload["message"].(string)
		body, _ := e.Payload["body"].(string)
		return strings.TrimSpace(msg + "\n" + body)
	default:
		return serializePayload(e.Payload)
	}
}

// serializePayload deterministically flattens a payload map (sorted keys)
// for sources with no dedicated text field.
func serializePayload(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(toStringValue(payload[k]))
	}
	return sb.String()
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func extractEntities(e eventlog.RawEvent, text string) Entities {
	var users []string
	if u, ok := e.Payload["user"].(string); ok && u != "" {
		users = append(users, u)
	}
	if us, ok := e.Payload["users"].([]any); ok {
		for _, u := range us {
			if s, ok := u.(string); ok {
				users = append(users, s)
			}
		}
	}

	var mentions []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		mentions = append(mentions, m[1])
	}

	links := linkRe.FindAllString(text, -1)

	return Entities{
		Users:    users,
		Mentions: mentions,
		Links:    links,
		Keywords: topKeywords(text, 10),
	}
}

// topKeywords returns the top n lowercased alphanumeric tokens of length
// >=4 that occur >=2 times, ranked by frequency with ties broken by
// first occurrence (spec §4.5.1).
func topKeywords(text string, n int) []string {
	lower := strings.ToLower(text)
	tokens := tokenRe.FindAllString(lower, -1)

	type stat struct {
		count int
		first int
	}
	stats := make(map[string]*stat)
	order := make([]string, 0)
	for i, tok := range tokens {
		if len(tok) < 4 {
			continue
		}
		s, ok := stats[tok]
		if !ok {
			s = &stat{first: i}
			stats[tok] = s
			order = append(order, tok)
		}
		s.count++
	}

	var candidates []string
	for _, tok := range order {
		if stats[tok].count >= 2 {
			candidates = append(candidates, tok)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := stats[candidates[i]], stats[candidates[j]]
		if si.count != sj.count {
			return si.count > sj.count
		}
		return si.first < sj.first
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// computeImportance applies the signal weights of spec §4.5.1, starting
// at 0.5 and clamping to [0,1].
func computeImportance(e eventlog.RawEvent, text string, entities Entities) float64 {
	score := 0.5

	if e.Source == "slack" {
		if threadTS, _ := e.Metadata["thread_ts"].(string); threadTS != "" {
			score -= 0.1
		}
		if reactions, ok := e.Payload["reactions"].([]any); ok && len(reactions) > 0 {
			score += 0.2
		}
	}

	if e.Source == "jira" {
		if priority, _ := e.Payload["priority"].(string); priority == "High" || priority == "Critical" {
			score += 0.3
		}
	}

	if len(entities.Links) > 0 {
		score += 0.1
	}
	if len(entities.Mentions) > 0 {
		score += 0.15
	}
	if len(text) > 200 {
		score += 0.1
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
