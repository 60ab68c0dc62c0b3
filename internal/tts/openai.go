package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAISampleRate is the rate of the speech endpoint's "pcm" format.
const OpenAISampleRate = 24000

// OpenAIConfig configures the OpenAI speech engine.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Speed   float64
	Timeout time.Duration
}

// OpenAIEngine synthesizes with the OpenAI speech endpoint, requesting raw
// 24kHz PCM16.
type OpenAIEngine struct {
	cfg    OpenAIConfig
	client openai.Client
}

// NewOpenAIEngine creates an engine. An API key is required.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai tts: API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SpeechModelTTS1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.AudioSpeechNewParamsVoiceNova)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEngine{cfg: cfg, client: openai.NewClient(opts...)}, nil
}

// Name returns "openai".
func (e *OpenAIEngine) Name() string { return "openai" }

// SampleRate returns 24000.
func (e *OpenAIEngine) SampleRate() int { return OpenAISampleRate }

// Synthesize renders text.
func (e *OpenAIEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(e.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(e.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if e.cfg.Speed > 0 && e.cfg.Speed != 1 {
		params.Speed = openai.Float(e.cfg.Speed)
	}

	resp, err := e.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return pcm, nil
}
