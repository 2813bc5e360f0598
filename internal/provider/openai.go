package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultOpenAIBase      = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultPerplexityBase  = "https://api.perplexity.ai"
	DefaultPerplexityModel = "sonar"
	defaultOpenAIMaxTokens = 500
)

// OpenAI talks to any chat-completions compatible endpoint.
type OpenAI struct {
	id        string
	base      string
	model     string
	key       string
	prompt    string
	maxTokens int
	client    *http.Client
}

func NewOpenAI(id, base, model, key, prompt string, maxTokens int, client *http.Client) *OpenAI {
	if base == "" {
		base = DefaultOpenAIBase
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{id: id, base: strings.TrimRight(base, "/"), model: model, key: key, prompt: prompt, maxTokens: maxTokens, client: client}
}

func (o *OpenAI) ID() string { return o.id }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) Ask(ctx context.Context, text string) (string, error) {
	if o.key == "" {
		return "", ErrNotConfigured
	}
	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: o.prompt},
			{Role: "user", Content: text},
		},
		MaxTokens: o.maxTokens,
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + o.key}
	if err := postJSON(ctx, o.client, o.base+"/chat/completions", headers, req, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", o.id, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", o.id, ErrEmptyAnswer)
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("%s: %w", o.id, ErrEmptyAnswer)
	}
	return out, nil
}
