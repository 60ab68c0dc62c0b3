package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OpenAIProvider serves OpenAI and any OpenAI-compatible chat endpoint
// (Groq is configured this way).
type OpenAIProvider struct {
	config *ProviderConfig
	client openai.Client
	logger zerolog.Logger
}

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(cfg *ProviderConfig) *OpenAIProvider {
	return newOpenAICompatible(cfg, "openai")
}

// NewGroqProvider creates a provider for Groq's OpenAI-compatible API.
func NewGroqProvider(cfg *ProviderConfig) *OpenAIProvider {
	return newOpenAICompatible(cfg, "groq")
}

func newOpenAICompatible(cfg *ProviderConfig, name string) *OpenAIProvider {
	cfg = withDefaults(cfg, name)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &OpenAIProvider{
		config: cfg,
		client: openai.NewClient(opts...),
		logger: log.With().Str("provider", name).Logger(),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return p.config.Name }

// Available reports whether an API key is configured.
func (p *OpenAIProvider) Available() bool { return p.config.APIKey != "" }

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, fmt.Errorf("%s: API key not configured", p.config.Name)
	}
	start := time.Now()
	model, maxTokens, temperature := resolve(req, p.config)

	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    openAIMessages(req),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.config.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &ChatResponse{
		Content:          strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		FinishReason:     string(resp.Choices[0].FinishReason),
		Duration:         time.Since(start),
	}
	if out.Content == "" {
		return nil, ErrEmptyResponse
	}

	p.logger.Debug().Str("model", out.Model).Int("tokens", out.TokensUsed()).Dur("duration", out.Duration).Msg("chat complete")
	return out, nil
}

func openAIMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
