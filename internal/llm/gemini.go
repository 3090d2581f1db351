package llm

import (
	"context"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider wraps the Gemini SDK. It supports chat/complete/embed
// but not local token counting without a round trip, so CountTokens
// uses the char estimate.
type GoogleProvider struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGoogleProvider(ctx context.Context, apiKey, model, embedModel string) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GoogleProvider{client: client, model: model, embedModel: embedModel}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Supports(op Operation) bool {
	switch op {
	case OpComplete, OpChat, OpEmbed, OpEmbedBatch, OpCountTokens:
		return true
	default:
		return false
	}
}

func (p *GoogleProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	resp, err := p.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, ChatOptions{
		MaxTokens: opts.MaxTokens, Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (p *GoogleProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	model := p.client.GenerativeModel(p.model)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		model.SetTemperature(float32(opts.Temperature))
	}

	cs := model.StartChat()
	var last Message
	for i, m := range messages {
		if m.Role == RoleSystem {
			model.SystemInstruction = genai.NewUserContent(genai.Text(m.Content))
			continue
		}
		if i == len(messages)-1 {
			last = m
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return ChatResponse{}, Upstream(p.Name(), err.Error())
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, Upstream(p.Name(), "empty candidates in response")
	}

	var out ChatResponse
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.Text += string(text)
		}
	}
	return out, nil
}

func (p *GoogleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(p.embedModel)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, Upstream(p.Name(), err.Error())
	}
	return resp.Embedding.Values, nil
}

func (p *GoogleProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := p.client.EmbeddingModel(p.embedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, Upstream(p.Name(), err.Error())
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (p *GoogleProvider) CountTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

func (p *GoogleProvider) Close() error { return p.client.Close() }
