// Package oracle talks to the external natural-language service that turns
// free text into a structured metad command.
//
// A Client sends one prompt per call: no retries, no streaming. Providers
// differ only in transport and in the response envelope, so each envelope
// shape is unwrapped by an Extractor and the NLQ front-end only ever sees
// the command text.
//
// Supported providers:
//
//   - openai: chat completions via go-openai (any OpenAI-compatible endpoint)
//   - ollama: Ollama's OpenAI-compatible /v1 API via go-openai
//   - gemini: Google Gemini via the genai SDK
//   - http:   a plain JSON POST whose response is unwrapped by an Extractor
package oracle
