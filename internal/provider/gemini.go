package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultGeminiBase  = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-1.5-flash"
)

// Gemini calls the generateContent REST endpoint.
type Gemini struct {
	id     string
	base   string
	model  string
	key    string
	prompt string
	client *http.Client
}

func NewGemini(id, base, model, key, prompt string, client *http.Client) *Gemini {
	if base == "" {
		base = DefaultGeminiBase
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Gemini{id: id, base: strings.TrimRight(base, "/"), model: model, key: key, prompt: prompt, client: client}
}

func (g *Gemini) ID() string { return g.id }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) Ask(ctx context.Context, text string) (string, error) {
	if g.key == "" {
		return "", ErrNotConfigured
	}
	// The key travels in a header: transport errors quote the URL and end up
	// in delivered records.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.base, url.PathEscape(g.model))
	headers := map[string]string{"x-goog-api-key": g.key}
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: g.prompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
	}
	var resp geminiResponse
	if err := postJSON(ctx, g.client, endpoint, headers, req, &resp); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if r := resp.PromptFeedback.BlockReason; r != "" {
		return "", fmt.Errorf("gemini: %w (%s)", ErrBlocked, r)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w", ErrEmptyAnswer)
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini: %w (finish=%s)", ErrEmptyAnswer, resp.Candidates[0].FinishReason)
	}
	return out, nil
}
