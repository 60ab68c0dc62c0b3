package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/wakeloop/internal/config"
)

// New builds the configured engine wrapped in a Synthesizer.
func New(ctx context.Context, cfg config.TTSConfig) (*Synthesizer, error) {
	var engine Engine
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		e, err := NewOpenAIEngine(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
			Voice:   cfg.Voice,
			Speed:   cfg.SpeakingRate,
		})
		if err != nil {
			return nil, err
		}
		engine = e
	case "google":
		e, err := NewGoogleEngine(ctx, GoogleConfig{
			Language:        cfg.Language,
			Voice:           cfg.Voice,
			SpeakingRate:    cfg.SpeakingRate,
			SampleRate:      cfg.SampleRate,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		engine = e
	default:
		return nil, fmt.Errorf("tts: unknown provider: %s", cfg.Provider)
	}

	return NewSynthesizer(engine, Options{
		MaxChars:  cfg.MaxChars,
		Normalize: cfg.Normalize,
	}), nil
}

// Close releases the engine's connection, if it holds one.
func (s *Synthesizer) Close() error {
	if c, ok := s.engine.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
