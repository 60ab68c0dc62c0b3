package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/normanking/wakeloop/internal/audio"
)

// GoogleConfig configures the Cloud Text-to-Speech engine.
type GoogleConfig struct {
	Language string
	// Voice is a full voice name such as "en-US-Neural2-F". Names that do
	// not start with a language code are ignored and the service picks a
	// voice for Language.
	Voice           string
	SpeakingRate    float64
	SampleRate      int
	CredentialsFile string
}

type synthesizeClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleEngine synthesizes LINEAR16 audio with Cloud Text-to-Speech.
type GoogleEngine struct {
	cfg    GoogleConfig
	client synthesizeClient
	closer func() error
}

// NewGoogleEngine dials the Text-to-Speech API.
func NewGoogleEngine(ctx context.Context, cfg GoogleConfig) (*GoogleEngine, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	e := newGoogleEngine(cfg, client)
	e.closer = client.Close
	return e, nil
}

func newGoogleEngine(cfg GoogleConfig, client synthesizeClient) *GoogleEngine {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.SpeakingRate == 0 {
		cfg.SpeakingRate = 1
	}
	if !strings.HasPrefix(strings.ToLower(cfg.Voice), strings.ToLower(cfg.Language)+"-") {
		cfg.Voice = ""
	}
	return &GoogleEngine{cfg: cfg, client: client}
}

// Name returns "google".
func (e *GoogleEngine) Name() string { return "google" }

// SampleRate returns the configured output rate.
func (e *GoogleEngine) SampleRate() int { return e.cfg.SampleRate }

// Close releases the client connection.
func (e *GoogleEngine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// retryUnavailable retries transient failures a few times with backoff.
var retryUnavailable = gax.WithRetry(func() gax.Retryer {
	return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
	})
})

// Synthesize renders text. The WAV header the service prepends to
// LINEAR16 audio is removed.
func (e *GoogleEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: e.cfg.Language,
			Name:         e.cfg.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(e.cfg.SampleRate),
			SpeakingRate:    e.cfg.SpeakingRate,
		},
	}

	resp, err := e.client.SynthesizeSpeech(ctx, req, retryUnavailable)
	if err != nil {
		return nil, fmt.Errorf("google tts: %w", err)
	}
	return audio.StripWAVHeader(resp.GetAudioContent()), nil
}
