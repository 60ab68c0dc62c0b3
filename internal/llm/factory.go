package llm

import (
	"fmt"
	"sort"

	"github.com/normanking/wakeloop/internal/config"
)

// NewProvider creates the configured default provider wrapped in a
// MetricsProvider.
func NewProvider(cfg *config.Config) (*MetricsProvider, error) {
	name := cfg.LLM.DefaultProvider
	if name == "" {
		name = "ollama"
	}
	pc, ok := cfg.LLM.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not found in configuration", name)
	}

	apiKey := pc.APIKey
	if apiKey == "" {
		apiKey = config.APIKeyFromEnv(name)
	}

	provider, err := NewProviderByName(name, &ProviderConfig{
		Name:        name,
		Endpoint:    pc.Endpoint,
		APIKey:      apiKey,
		Model:       pc.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     pc.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewMetricsProvider(provider), nil
}

// NewProviderByName creates a specific provider by name.
func NewProviderByName(name string, cfg *ProviderConfig) (Provider, error) {
	switch name {
	case "ollama":
		return NewOllamaProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "groq":
		return NewGroqProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// ProviderNames lists the providers NewProviderByName understands.
func ProviderNames() []string {
	names := []string{"ollama", "openai", "groq", "gemini"}
	sort.Strings(names)
	return names
}
