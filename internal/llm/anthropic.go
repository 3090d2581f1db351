package llm

import (
	"context"
	"errors"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider wraps go-anthropic. It supports complete/chat/count
// but not embed (Anthropic has no embeddings endpoint).
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(apiKey), model: model}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Supports(op Operation) bool {
	switch op {
	case OpComplete, OpChat, OpCountTokens:
		return true
	default:
		return false
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	resp, err := p.chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, ChatOptions{
		MaxTokens: opts.MaxTokens, Temperature: opts.Temperature, StopSequences: opts.StopSequences,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	return p.chat(ctx, messages, opts)
}

func (p *AnthropicProvider) chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		Messages:    toAnthropicMessages(messages),
		MaxTokens:   nonZero(opts.MaxTokens, 1024),
		Temperature: floatPtr(opts.Temperature),
		StopSequences: opts.StopSequences,
	}
	for _, m := range messages {
		if m.Role != RoleSystem {
			continue
		}
		if req.System != "" {
			req.System += "\n\n"
		}
		req.System += m.Content
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	resp, err := p.client.CreateMessages(ctx, req)
	if err != nil {
		return ChatResponse{}, classifyAnthropicErr(err)
	}

	out := ChatResponse{}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			out.Text += block.GetText()
		case anthropic.MessagesContentTypeToolUse:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    block.MessageContentToolUse.ID,
				Name:  block.MessageContentToolUse.Name,
				Input: block.MessageContentToolUse.Input,
			})
		}
	}
	return out, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, unsupported(p.Name(), OpEmbed)
}

func (p *AnthropicProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, unsupported(p.Name(), OpEmbedBatch)
}

func (p *AnthropicProvider) CountTokens(text string) (int, error) {
	// Anthropic's API-side token counting requires a network round trip
	// per message; the char-based estimate is used for the cheap,
	// synchronous budget checks the context builder needs.
	return EstimateTokens(text), nil
}

func toAnthropicMessages(messages []Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue // system prompt is passed via MessagesRequest.System
		}
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		out = append(out, anthropic.Message{Role: role, Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)}})
	}
	return out
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case "rate_limit_error":
			return RateLimited("anthropic", 0)
		case "authentication_error":
			return Unauthenticated("anthropic")
		}
	}
	return Upstream("anthropic", err.Error())
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func floatPtr(v float64) *float32 {
	if v == 0 {
		return nil
	}
	f := float32(v)
	return &f
}
