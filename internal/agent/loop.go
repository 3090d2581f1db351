package agent

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/hivemind/internal/llm"
)

const maxConcurrentToolCalls = 4

// StepKind tags one entry in an agent run's transcript (spec §9's
// tagged-variant style).
type StepKind string

const (
	StepThinking   StepKind = "thinking"
	StepToolUse    StepKind = "tool_use"
	StepToolResult StepKind = "tool_result"
	StepMessage    StepKind = "message"
)

// Step is one entry in the agent transcript.
type Step struct {
	Kind       StepKind
	Text       string
	ToolCall   *llm.ToolCall
	ToolResult *ToolResult
}

// ToolResult is a structured tool outcome; failures never become
// exceptions, they become a Success:false entry the LLM can react to
// (spec §7).
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

const defaultMaxIterations = 5

// Options tunes one Run call.
type Options struct {
	MaxIterations int
	Temperature   float64
	MaxTokens     int
}

// Loop drives the tool-use agent loop of spec §4.9.
type Loop struct {
	provider llm.Provider
	registry *Registry
}

func NewLoop(provider llm.Provider, registry *Registry) *Loop {
	return &Loop{provider: provider, registry: registry}
}

// Run executes the agent loop and returns the terminal text answer (or
// the iteration-limit message) plus the full step transcript.
func (l *Loop) Run(ctx context.Context, systemPrompt, query string, history []llm.Message, opts Options) (string, []Step, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	tools := l.registry.Export()
	var transcript []Step

	for i := 0; i < opts.MaxIterations; i++ {
		resp, err := l.provider.Chat(ctx, messages, llm.ChatOptions{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Tools:       tools,
		})
		if err != nil {
			return "", transcript, err
		}

		if len(resp.ToolCalls) == 0 {
			transcript = append(transcript, Step{Kind: StepMessage, Text: resp.Text})
			return resp.Text, transcript, nil
		}

		if resp.Text != "" {
			transcript = append(transcript, Step{Kind: StepThinking, Text: resp.Text})
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		results := l.executeToolCalls(ctx, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			transcript = append(transcript, Step{Kind: StepToolUse, ToolCall: &resp.ToolCalls[i]})
			transcript = append(transcript, Step{Kind: StepToolResult, ToolResult: &results[i]})

			serialized, err := json.Marshal(results[i])
			if err != nil {
				serialized = []byte(`{"success":false,"error":"failed to serialize tool result"}`)
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    string(serialized),
			})
		}
	}

	return "unable to complete request within iteration limit", transcript, nil
}

// executeToolCalls runs every tool call from one LLM turn concurrently,
// bounded to maxConcurrentToolCalls, and returns results in the same
// order as calls so the caller can pair each with its tool_use step.
func (l *Loop) executeToolCalls(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentToolCalls)

	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			results[i] = l.executeTool(gCtx, tc)
			return nil
		})
	}
	// Tool failures are captured as ToolResult, not returned, so Wait
	// never fails; it only blocks until every call has finished.
	_ = g.Wait()

	return results
}

func (l *Loop) executeTool(ctx context.Context, tc llm.ToolCall) ToolResult {
	out, err := l.registry.Execute(ctx, tc.Name, tc.Input)
	if err != nil {
		return ToolResult{ToolCallID: tc.ID, Success: false, Error: err.Error()}
	}
	return ToolResult{ToolCallID: tc.ID, Success: true, Result: out}
}
