package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ollamaMessage/ollamaChatRequest mirror Ollama's /api/chat wire format.
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaProvider talks to a local Ollama server. It supports chat and
// embed but not tool-calling (Ollama's function-call support varies by
// model and is not uniform enough to expose here).
type OllamaProvider struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

func NewOllamaProvider(baseURL, chatModel, embedModel string) *OllamaProvider {
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Supports(op Operation) bool {
	switch op {
	case OpComplete, OpChat, OpEmbed, OpEmbedBatch, OpCountTokens:
		return true
	default:
		return false
	}
}

func (p *OllamaProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	resp, err := p.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, ChatOptions{
		MaxTokens: opts.MaxTokens, Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error) {
	if len(opts.Tools) > 0 {
		return ChatResponse{}, unsupported(p.Name(), OpChat)
	}

	msgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.chatModel,
		Messages: msgs,
		Options:  ollamaOptions{Temperature: opts.Temperature},
	})
	if err != nil {
		return ChatResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ChatResponse{}, Upstream(p.Name(), err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, Upstream(p.Name(), fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("decoding chat response: %w", err)
	}
	return ChatResponse{Text: out.Message.Content}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.embedModel, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, Upstream(p.Name(), err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, Upstream(p.Name(), fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, Upstream(p.Name(), "empty embeddings array")
	}
	return out.Embeddings[0], nil
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *OllamaProvider) CountTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

// IsRunning reports whether the Ollama server is reachable: a GET of
// /api/tags that answers 200 within two seconds.
func (p *OllamaProvider) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
