// Package llm provides the chat model backends: Ollama (local), OpenAI and
// OpenAI-compatible endpoints such as Groq, and Google Gemini.
package llm

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read.
const MaxErrorBodySize = 1 * 1024 * 1024

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Chat sends the conversation and returns the reply.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available returns true if the provider is configured and reachable.
	Available() bool
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model to use. Empty means the provider's configured model.
	Model string `json:"model"`

	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
}

// Message is one conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse contains the model's reply.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// TokensUsed returns prompt plus completion tokens.
func (r *ChatResponse) TokensUsed() int {
	return r.PromptTokens + r.CompletionTokens
}

// ProviderConfig contains configuration for an LLM provider.
type ProviderConfig struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns defaults for a provider. Replies are spoken, so
// token limits are short.
func DefaultConfig(name string) *ProviderConfig {
	cfg := &ProviderConfig{
		Name:        name,
		MaxTokens:   256,
		Temperature: 0.7,
		Timeout:     time.Minute,
	}
	switch name {
	case "ollama":
		cfg.Endpoint = "http://127.0.0.1:11434"
		cfg.Model = "llama3.2"
		cfg.Timeout = 2 * time.Minute
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1"
		cfg.Model = "gpt-4o-mini"
	case "groq":
		cfg.Endpoint = "https://api.groq.com/openai/v1"
		cfg.Model = "llama-3.1-8b-instant"
		cfg.Timeout = 30 * time.Second
	case "gemini":
		cfg.Model = "gemini-2.0-flash"
	}
	return cfg
}

// withDefaults fills empty fields of cfg from DefaultConfig(name).
func withDefaults(cfg *ProviderConfig, name string) *ProviderConfig {
	defaults := DefaultConfig(name)
	if cfg == nil {
		return defaults
	}
	c := *cfg
	c.Name = name
	if c.Endpoint == "" {
		c.Endpoint = defaults.Endpoint
	}
	if c.Model == "" {
		c.Model = defaults.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaults.MaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = defaults.Temperature
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	return &c
}

// resolve picks request values, falling back to the provider config.
func resolve(req *ChatRequest, cfg *ProviderConfig) (model string, maxTokens int, temperature float64) {
	model, maxTokens, temperature = req.Model, req.MaxTokens, req.Temperature
	if model == "" {
		model = cfg.Model
	}
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}
	if temperature == 0 {
		temperature = cfg.Temperature
	}
	return model, maxTokens, temperature
}
