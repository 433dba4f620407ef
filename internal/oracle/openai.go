package oracle

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient asks an OpenAI-compatible chat completion endpoint. It also
// serves Ollama through its /v1 compatibility API.
type OpenAIClient struct {
	client   *openai.Client
	provider Provider
	model    string
	cfg      Config
}

// NewOpenAI creates a chat-completion client. A non-empty cfg.Endpoint
// replaces the default base URL.
func NewOpenAI(cfg Config) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: provider,
		model:    model,
		cfg:      cfg,
	}
}

// Ask implements Client.
func (c *OpenAIClient) Ask(ctx context.Context, text string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", unavailable(c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(c.provider, fmt.Errorf("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}
