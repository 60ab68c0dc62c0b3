package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GoogleConfig configures Cloud Speech-to-Text streaming recognition.
type GoogleConfig struct {
	Language   string
	SampleRate int
	// CredentialsFile is a service account JSON file. Empty uses the
	// application default credentials.
	CredentialsFile string
}

// Google recognizes speech with Cloud Speech-to-Text streaming in
// single-utterance mode.
type Google struct {
	cfg    GoogleConfig
	client *speech.Client
	open   func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)
}

// NewGoogle dials the Speech API.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google stt: create client: %w", err)
	}

	g := newGoogle(cfg, func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return client.StreamingRecognize(ctx)
	})
	g.client = client
	return g, nil
}

func newGoogle(cfg GoogleConfig, open func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error)) *Google {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Google{cfg: cfg, open: open}
}

// Name returns "google".
func (g *Google) Name() string { return "google" }

// Close releases the client connection.
func (g *Google) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Google) streamingConfig() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(g.cfg.SampleRate),
					LanguageCode:               g.cfg.Language,
					EnableAutomaticPunctuation: true,
				},
				SingleUtterance: true,
			},
		},
	}
}

// Recognize streams frames and returns the first final transcript. If the
// stream ends without one the result is empty.
func (g *Google) Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := g.open(ctx)
	if err != nil {
		return "", fmt.Errorf("google stt: open stream: %w", err)
	}
	if err := stream.Send(g.streamingConfig()); err != nil {
		return "", fmt.Errorf("google stt: send config: %w", err)
	}

	go g.sendAudio(ctx, stream, frames)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("google stt: receive: %w", err)
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			return "", fmt.Errorf("google stt: %s (code %d)", st.GetMessage(), st.GetCode())
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			log.Debug().Msg("google stt: end of single utterance")
		}
		for _, result := range resp.GetResults() {
			if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
				continue
			}
			return strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()), nil
		}
	}
}

func (g *Google) sendAudio(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, frames iter.Seq[[]byte]) {
	for frame := range frames {
		if ctx.Err() != nil {
			return
		}
		err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: frame},
		})
		if err != nil {
			log.Debug().Err(err).Msg("google stt: send audio stopped")
			return
		}
	}
	if err := stream.CloseSend(); err != nil {
		log.Debug().Err(err).Msg("google stt: close send")
	}
}
