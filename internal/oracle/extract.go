package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/metad/internal/fault"
)

// Extractor pulls the command text out of a provider's response envelope.
type Extractor interface {
	Extract(body []byte) (string, error)
}

// ExtractorFor returns the extractor registered under name. The empty
// name selects AutoExtractor.
func ExtractorFor(name string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return AutoExtractor{}, nil
	case "chat", "openai":
		return ChatCompletionExtractor{}, nil
	case "ollama":
		return OllamaGenerateExtractor{}, nil
	case "anthropic":
		return AnthropicMessageExtractor{}, nil
	case "raw":
		return RawExtractor{}, nil
	}
	return nil, fmt.Errorf("unknown oracle extractor %q", name)
}

// ChatCompletionExtractor reads choices[0].message.content, falling back to
// the legacy choices[0].text.
type ChatCompletionExtractor struct{}

func (ChatCompletionExtractor) Extract(body []byte) (string, error) {
	var env struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", envelopeError("chat completion", err)
	}
	if len(env.Choices) == 0 {
		return "", envelopeError("chat completion", fmt.Errorf("no choices"))
	}
	if c := env.Choices[0].Message.Content; c != "" {
		return c, nil
	}
	if t := env.Choices[0].Text; t != "" {
		return t, nil
	}
	return "", envelopeError("chat completion", fmt.Errorf("empty choice"))
}

// OllamaGenerateExtractor reads the "response" field of /api/generate.
type OllamaGenerateExtractor struct{}

func (OllamaGenerateExtractor) Extract(body []byte) (string, error) {
	var env struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", envelopeError("ollama", err)
	}
	if env.Response == nil {
		return "", envelopeError("ollama", fmt.Errorf("missing response field"))
	}
	return *env.Response, nil
}

// AnthropicMessageExtractor concatenates the text blocks of a messages API
// reply.
type AnthropicMessageExtractor struct{}

func (AnthropicMessageExtractor) Extract(body []byte) (string, error) {
	var env struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", envelopeError("anthropic", err)
	}
	var sb strings.Builder
	for _, block := range env.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", envelopeError("anthropic", fmt.Errorf("no text content"))
	}
	return sb.String(), nil
}

// RawExtractor returns the body unchanged.
type RawExtractor struct{}

func (RawExtractor) Extract(body []byte) (string, error) {
	return strings.TrimSpace(string(body)), nil
}

// AutoExtractor tries each known envelope in turn and falls back to the
// raw body. A body that is itself a command (has "action") is returned
// as is.
type AutoExtractor struct{}

func (AutoExtractor) Extract(body []byte) (string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return RawExtractor{}.Extract(body)
	}

	switch {
	case probe["action"] != nil:
		return RawExtractor{}.Extract(body)
	case probe["choices"] != nil:
		return ChatCompletionExtractor{}.Extract(body)
	case probe["content"] != nil:
		return AnthropicMessageExtractor{}.Extract(body)
	case probe["response"] != nil:
		return OllamaGenerateExtractor{}.Extract(body)
	}
	return RawExtractor{}.Extract(body)
}

func envelopeError(kind string, err error) error {
	return fault.Wrap(fault.ParseFailure, fmt.Sprintf("unexpected %s envelope", kind), err)
}
