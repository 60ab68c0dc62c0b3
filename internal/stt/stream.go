package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamConfig configures the websocket recognizer.
type StreamConfig struct {
	// Endpoint is the websocket URL of the recognition server.
	Endpoint         string
	Language         string
	SampleRate       int
	HandshakeTimeout time.Duration
}

// StreamMessage is a JSON control message on the recognition socket. The
// client sends "start" and "stop"; the server answers with "partial",
// "final" or "error".
type StreamMessage struct {
	Type            string `json:"type"`
	Text            string `json:"text,omitempty"`
	Error           string `json:"error,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
	Language        string `json:"language,omitempty"`
	SingleUtterance bool   `json:"single_utterance,omitempty"`
}

// Stream recognizes speech on a websocket server: audio goes out as binary
// PCM16 messages and transcripts come back as JSON.
type Stream struct {
	cfg    StreamConfig
	dialer websocket.Dialer
}

// NewStream creates a websocket recognizer. No connection is made until
// Recognize.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Stream{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Name returns "stream".
func (s *Stream) Name() string { return "stream" }

// Close is a no-op; each Recognize owns its own connection.
func (s *Stream) Close() error { return nil }

// Recognize opens a connection for one utterance.
func (s *Stream) Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("stream stt: failed to connect: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	start := StreamMessage{
		Type:            "start",
		SampleRate:      s.cfg.SampleRate,
		Language:        s.cfg.Language,
		SingleUtterance: true,
	}
	if err := conn.WriteJSON(start); err != nil {
		return "", fmt.Errorf("stream stt: send start: %w", err)
	}

	go s.sendAudio(ctx, conn, frames)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", nil
			}
			return "", fmt.Errorf("stream stt: read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("message", string(data)).Msg("stream stt: failed to parse message")
			continue
		}
		switch msg.Type {
		case "final":
			return strings.TrimSpace(msg.Text), nil
		case "error":
			return "", fmt.Errorf("stream stt: server error: %s", msg.Error)
		case "partial":
			log.Debug().Str("text", msg.Text).Msg("stream stt: partial")
		}
	}
}

func (s *Stream) sendAudio(ctx context.Context, conn *websocket.Conn, frames iter.Seq[[]byte]) {
	for frame := range frames {
		if ctx.Err() != nil {
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Debug().Err(err).Msg("stream stt: send audio stopped")
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if err := conn.WriteJSON(StreamMessage{Type: "stop"}); err != nil {
		log.Debug().Err(err).Msg("stream stt: send stop")
	}
}
