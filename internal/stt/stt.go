// Package stt provides speech recognizers for capture sessions.
//
// Every recognizer works under single-utterance semantics: it consumes
// frames until the backend reports a final transcript or the frame sequence
// ends, and returns that one transcript.
package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/wakeloop/internal/capture"
	"github.com/normanking/wakeloop/internal/config"
)

// Recognizer is a capture.Recognizer that owns a backend connection.
type Recognizer interface {
	capture.Recognizer
	Name() string
	Close() error
}

// New builds the recognizer selected by cfg.Provider for mono PCM16 at
// sampleRate.
func New(ctx context.Context, cfg config.STTConfig, sampleRate int) (Recognizer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "google":
		return NewGoogle(ctx, GoogleConfig{
			Language:        cfg.Language,
			SampleRate:      sampleRate,
			CredentialsFile: cfg.CredentialsFile,
		})
	case "stream":
		return NewStream(StreamConfig{
			Endpoint:   cfg.Endpoint,
			Language:   cfg.Language,
			SampleRate: sampleRate,
		}), nil
	case "whisper":
		wc := WhisperConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.WhisperModel,
			Language:   cfg.Language,
			SampleRate: sampleRate,
			SilenceRMS: cfg.SilenceRMS,
			MinSpeech:  cfg.MinSpeech,
			EndSilence: cfg.EndSilence,
		}
		if strings.HasPrefix(cfg.Endpoint, "http") {
			wc.BaseURL = cfg.Endpoint
		}
		return NewWhisper(wc)
	default:
		return nil, fmt.Errorf("stt: unknown provider: %s", cfg.Provider)
	}
}

// languageBase turns "en-US" into "en" for backends that take ISO-639-1.
func languageBase(lang string) string {
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		return strings.ToLower(lang[:i])
	}
	return strings.ToLower(lang)
}
