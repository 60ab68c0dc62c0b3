package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/audio"
)

// WhisperConfig configures batch transcription through the OpenAI API.
type WhisperConfig struct {
	APIKey string
	// BaseURL overrides the API root, for OpenAI-compatible servers.
	BaseURL    string
	Model      string
	Language   string
	SampleRate int
	SilenceRMS float64
	MinSpeech  time.Duration
	EndSilence time.Duration
	Timeout    time.Duration
}

// Whisper endpoints speech locally with an energy VAD and sends the
// utterance to the transcription endpoint as a WAV file.
type Whisper struct {
	cfg    WhisperConfig
	client openai.Client
}

// NewWhisper creates a Whisper recognizer.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("whisper stt: API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
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
	return &Whisper{cfg: cfg, client: openai.NewClient(opts...)}, nil
}

// Name returns "whisper".
func (w *Whisper) Name() string { return "whisper" }

// Close is a no-op.
func (w *Whisper) Close() error { return nil }

// Recognize buffers frames until trailing silence follows confirmed speech,
// then transcribes the buffered audio. Frames that end without any speech
// yield an empty transcript.
func (w *Whisper) Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
	vad := audio.NewVAD(audio.VADConfig{
		Threshold:  w.cfg.SilenceRMS,
		MinSpeech:  w.cfg.MinSpeech,
		MaxSilence: w.cfg.EndSilence,
	}, w.cfg.SampleRate)

	var pcm bytes.Buffer
	for frame := range frames {
		pcm.Write(frame)
		if vad.Process(frame) == audio.VADEndOfSpeech {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !vad.Active() {
		return "", nil
	}

	return w.Transcribe(ctx, pcm.Bytes())
}

// Transcribe sends one PCM16 utterance and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	start := time.Now()
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio.EncodeWAV(pcm, w.cfg.SampleRate)), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(w.cfg.Model),
	}
	if w.cfg.Language != "" {
		params.Language = openai.String(languageBase(w.cfg.Language))
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper stt: transcribe: %w", err)
	}

	log.Debug().
		Dur("audio", audio.Duration(pcm, w.cfg.SampleRate)).
		Dur("elapsed", time.Since(start)).
		Msg("whisper stt: transcribed")
	return strings.TrimSpace(resp.Text), nil
}
