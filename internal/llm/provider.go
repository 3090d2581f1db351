// Package llm implements the LLM Provider Abstraction (C10): a uniform
// completion/chat/embed/token-count interface across back-ends, each
// declaring which operations it supports.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kalambet/hivemind/internal/herrors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a chat exchange. ToolCalls is set on assistant
// messages that invoke tools; ToolCallID/Content on the tool-result
// message answering a specific call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolSpec describes a callable tool in the shape a chat API expects.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema
}

// CompletionOptions applies to Complete.
type CompletionOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// ChatOptions applies to Chat; Tools is empty for plain conversation.
type ChatOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
	Tools         []ToolSpec
}

// ChatResponse is a chat turn's result: either a terminal text answer
// or one or more tool calls the caller must satisfy before continuing.
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Operation identifies one of Provider's methods, for capability checks.
type Operation string

const (
	OpComplete    Operation = "complete"
	OpChat        Operation = "chat"
	OpEmbed       Operation = "embed"
	OpEmbedBatch  Operation = "embed_batch"
	OpCountTokens Operation = "count_tokens"
)

// Provider is the closed operation set every LLM back-end implements.
// A provider that lacks an operation must fail fast with herrors.Unsupported
// rather than emulate it.
type Provider interface {
	Name() string
	Supports(op Operation) bool

	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	CountTokens(text string) (int, error)
}

// unsupported is a helper providers call from an operation they don't implement.
func unsupported(provider string, op Operation) error {
	return herrors.New(herrors.KindUnsupported, fmt.Sprintf("%s does not support %s", provider, op))
}

// RateLimited constructs the normalized rate-limit error (spec §4.10),
// with retryAfter surfaced as a detail so callers can honor it.
func RateLimited(provider string, retryAfterSeconds int) error {
	return herrors.New(herrors.KindRateLimited, fmt.Sprintf("%s: rate limited", provider)).
		WithDetail("retry_after_seconds", retryAfterSeconds)
}

func Unauthenticated(provider string) error {
	return herrors.New(herrors.KindUnauthenticated, fmt.Sprintf("%s: unauthenticated", provider))
}

func Upstream(provider, message string) error {
	return herrors.New(herrors.KindUpstream, fmt.Sprintf("%s: %s", provider, message))
}
