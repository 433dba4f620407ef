package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient asks Google Gemini through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	cfg    Config
}

// NewGemini creates a Gemini client. A non-empty cfg.Endpoint replaces the
// API base URL.
func NewGemini(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini oracle requires an API key")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{client: client, model: model, cfg: cfg}, nil
}

// Ask implements Client.
func (c *GeminiClient) Ask(ctx context.Context, text string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt}}},
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), genCfg)
	if err != nil {
		return "", unavailable(ProviderGemini, err)
	}
	out := resp.Text()
	if out == "" {
		return "", unavailable(ProviderGemini, fmt.Errorf("empty response"))
	}
	return out, nil
}
