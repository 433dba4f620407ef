package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/metad/internal/fault"
)

// Provider names an oracle backend.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
	ProviderHTTP   Provider = "http"
)

// Default models and endpoints per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOllamaModel    = "llama3.2"
	DefaultOllamaEndpoint = "http://localhost:11434/v1"
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultTimeout        = 15 * time.Second
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// EnvVarName returns the environment variable holding the provider's API
// key, or "" if it needs none.
func (p Provider) EnvVarName() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// ParseProvider parses a provider name. The empty string means none.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProviderNone, nil
	case ProviderNone, ProviderOpenAI, ProviderOllama, ProviderGemini, ProviderHTTP:
		return p, nil
	}
	return "", fmt.Errorf("unknown oracle provider %q (want none, openai, ollama, gemini or http)", s)
}

// DetectProvider picks a provider from the environment read through
// getenv: an explicit METAD_ORACLE_PROVIDER wins, then the first API key
// found, then a bare METAD_ORACLE_ENDPOINT (generic HTTP). Returns
// ProviderNone otherwise.
func DetectProvider(getenv func(string) string) Provider {
	if p, err := ParseProvider(getenv("METAD_ORACLE_PROVIDER")); err == nil && p != ProviderNone {
		return p
	}
	if getenv(ProviderOpenAI.EnvVarName()) != "" {
		return ProviderOpenAI
	}
	if getenv(ProviderGemini.EnvVarName()) != "" {
		return ProviderGemini
	}
	if getenv("METAD_ORACLE_ENDPOINT") != "" {
		return ProviderHTTP
	}
	return ProviderNone
}

// Client sends a natural-language request to the oracle and returns the
// command text it produced, already unwrapped from any response envelope.
type Client interface {
	Ask(ctx context.Context, text string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration

	// Extractor names the envelope extractor for the http provider
	// (chat, ollama, anthropic, raw, auto). Defaults to auto.
	Extractor string
}

// ValidateConfig checks that cfg carries what its provider needs.
func ValidateConfig(cfg Config) error {
	switch cfg.Provider {
	case ProviderNone, "":
		return nil
	case ProviderOpenAI, ProviderGemini:
		if cfg.APIKey == "" {
			return fmt.Errorf("%s oracle requires an API key (set %s)", cfg.Provider, cfg.Provider.EnvVarName())
		}
	case ProviderOllama:
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return fmt.Errorf("http oracle requires an endpoint")
		}
		if _, err := ExtractorFor(cfg.Extractor); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	return nil
}

// New creates a Client for cfg. It returns (nil, nil) for ProviderNone:
// callers treat a nil Client as an unconfigured oracle.
func New(ctx context.Context, cfg Config) (Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderOllama:
		if cfg.Endpoint == "" {
			cfg.Endpoint = DefaultOllamaEndpoint
		}
		if cfg.Model == "" {
			cfg.Model = DefaultOllamaModel
		}
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderHTTP:
		return NewHTTP(cfg)
	}
	return nil, nil
}

// unavailable classifies a transport failure.
func unavailable(provider Provider, err error) error {
	return fault.Wrap(fault.OracleUnavailable, fmt.Sprintf("%s oracle request failed", provider), err)
}
