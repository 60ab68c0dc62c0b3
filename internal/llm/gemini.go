package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// GeminiProvider uses the Gemini API through the genai SDK. The client is
// created on first use because construction needs a context.
type GeminiProvider struct {
	config *ProviderConfig

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(cfg *ProviderConfig) *GeminiProvider {
	return &GeminiProvider{config: withDefaults(cfg, "gemini")}
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// Available reports whether an API key is configured.
func (p *GeminiProvider) Available() bool { return p.config.APIKey != "" }

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.config.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.initErr
}

// Chat sends the conversation to GenerateContent.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	start := time.Now()
	model, maxTokens, temperature := resolve(req, p.config)
	cfg, contents := geminiRequest(req, maxTokens, temperature)

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &ChatResponse{
		Content:  strings.TrimSpace(resp.Text()),
		Model:    model,
		Duration: time.Since(start),
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if out.Content == "" {
		return nil, ErrEmptyResponse
	}

	log.Debug().Str("provider", "gemini").Str("model", model).Dur("duration", out.Duration).Msg("chat complete")
	return out, nil
}

// geminiRequest maps the conversation onto genai contents. Gemini calls the
// assistant role "model" and takes the system prompt separately.
func geminiRequest(req *ChatRequest, maxTokens int, temperature float64) (*genai.GenerateContentConfig, []*genai.Content) {
	temp := float32(temperature)
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     &temp,
	}

	system := req.SystemPrompt
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	return cfg, contents
}
