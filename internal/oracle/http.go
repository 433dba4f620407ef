package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes bounds how much of an oracle response is read.
const maxResponseBytes = 1 << 20

// HTTPClient posts the prompt to a generic JSON endpoint and unwraps the
// reply with an Extractor. The request body follows Ollama's generate
// shape, which most self-hosted gateways accept:
//
//	{"model": "...", "prompt": "...", "system": "...", "stream": false}
type HTTPClient struct {
	endpoint  string
	model     string
	apiKey    string
	extractor Extractor
	client    *http.Client
}

// NewHTTP creates a generic HTTP oracle client.
func NewHTTP(cfg Config) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http oracle requires an endpoint")
	}
	ex, err := ExtractorFor(cfg.Extractor)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		extractor: ex,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type httpRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream bool   `json:"stream"`
}

// Ask implements Client.
func (c *HTTPClient) Ask(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(httpRequest{
		Model:  c.model,
		Prompt: text,
		System: SystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", unavailable(ProviderHTTP, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", unavailable(ProviderHTTP, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", unavailable(ProviderHTTP, fmt.Errorf("status %d", resp.StatusCode))
	}
	return c.extractor.Extract(data)
}
