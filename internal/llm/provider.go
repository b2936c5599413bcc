// Package llm provides a rate-limited generation client with retry over
// pluggable text-generation providers.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Request is one text-generation request.
type Request struct {
	// Prompt is sent as a single user message.
	Prompt string

	// Temperature controls randomness.
	Temperature float64

	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int

	// Seed is passed through when the provider supports it.
	Seed *int64

	// JSON asks the provider for a JSON object response.
	JSON bool

	// Label identifies the request in logs, e.g. "external/7".
	Label string
}

// TokenUsage represents token consumption for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the generated text.
type Response struct {
	// RequestID uniquely identifies the Complete call that produced this.
	RequestID string

	Content      string
	Model        string
	Provider     string
	FinishReason string
	Usage        TokenUsage

	// Attempts is the number of provider calls made, including retries.
	Attempts int
}

// Provider performs a single generation attempt. Errors must be classified
// with NewTransientError, NewTokenLimitError or NewFatalError.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Completer is anything that can complete a request. *Client implements it.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// NewProvider builds the provider named in s. API keys fall back to
// OPENAI_API_KEY or GEMINI_API_KEY when unset.
func NewProvider(ctx context.Context, s Settings) (Provider, error) {
	if s.Timeout == 0 {
		s.Timeout = 180 * time.Second
	}
	switch s.Provider {
	case "openai", "":
		key := s.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" && s.BaseURL == "" {
			return nil, fmt.Errorf("openai provider: OPENAI_API_KEY is not set")
		}
		return NewOpenAIProvider(s.BaseURL, key, s.Model, s.Timeout), nil
	case "ollama":
		base := s.BaseURL
		if base == "" {
			base = os.Getenv("OLLAMA_HOST")
		}
		if base == "" {
			base = "http://localhost:11434"
		}
		return NewOpenAIProvider(base+"/v1", "", s.Model, s.Timeout).named("ollama"), nil
	case "genai":
		key := s.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		return NewGenAIProvider(ctx, key, s.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q (want openai, ollama or genai)", s.Provider)
	}
}
