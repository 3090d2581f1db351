package llm

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider wraps go-openai and supports every C10 operation:
// chat/completion, embeddings, and (via tiktoken) real token counting.
type OpenAIProvider struct {
	client       *openai.Client
	model        string
	embedModel   string
	tokenCounter *tiktokenCounter
}

func NewOpenAIProvider(apiKey, model, embedModel string) *OpenAIProvider {
	return &OpenAIProvider{
		client:       openai.NewClient(apiKey),
		model:        model,
		embedModel:   embedModel,
		tokenCounter: newTiktokenCounter(model),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Supports(op Operation) bool { return true }

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	resp, err := p.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, ChatOptions{
		MaxTokens: opts.MaxTokens, Temperature: opts.Temperature, StopSequences: opts.StopSequences,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stop:        opts.StopSequences,
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ChatResponse{}, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, Upstream(p.Name(), "empty choices in response")
	}

	choice := resp.Choices[0]
	out := ChatResponse{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *OpenAIProvider) CountTokens(text string) (int, error) {
	return p.tokenCounter.Count(text), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return RateLimited("openai", 0)
		case 401:
			return Unauthenticated("openai")
		}
	}
	return Upstream("openai", err.Error())
}
