package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Enhancer optionally rewrites a prompt before submission. Enhancement
// is best-effort: implementations return the input unchanged rather
// than failing the generation.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) string
}

// NoopEnhancer returns the prompt as-is. Used when no enhancer is
// configured or as the fallback behind GeminiEnhancer.
type NoopEnhancer struct{}

func (NoopEnhancer) Enhance(_ context.Context, prompt string) string { return prompt }

const (
	geminiDefaultTimeout = 15 * time.Second

	enhanceInstruction = "Rewrite the following video generation prompt to be more vivid and cinematic. " +
		"Keep every ingredient, the cuisine and the cooking actions. Reply with the rewritten prompt only.\n\n"
)

// GeminiOptions configures the Gemini prompt enhancer.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiEnhancer calls the Gemini generateContent API to polish a
// prompt. Any failure falls back to the original prompt.
type GeminiEnhancer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiEnhancer(opts GeminiOptions) *GeminiEnhancer {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiEnhancer{apiKey: opts.APIKey, model: model, baseURL: baseURL, client: client}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiEnhancer) Enhance(ctx context.Context, prompt string) string {
	if g.apiKey == "" {
		return prompt
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: enhanceInstruction + prompt}},
		}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return prompt
	}
	endpoint := g.baseURL + "/models/" + g.model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return prompt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(req)
	if err != nil {
		return prompt
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return prompt
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return prompt
	}
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return text
			}
		}
	}
	return prompt
}

var (
	_ Enhancer = (*GeminiEnhancer)(nil)
	_ Enhancer = NoopEnhancer{}
)
