package wakeword

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WakeWordEvent is a detection reported by the remote server.
type WakeWordEvent struct {
	Type       string  `json:"type"`
	WakeWord   string  `json:"wake_word"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// RemoteConfig configures the websocket detector.
type RemoteConfig struct {
	// Endpoint is the websocket URL of the detection server.
	Endpoint string

	// WakeWords is the list of wake words to detect.
	WakeWords []string

	// Threshold is the detection threshold (0.0-1.0).
	Threshold float64

	// SampleRate of the audio sent.
	SampleRate int

	// Timeout bounds the websocket handshake and each write.
	Timeout time.Duration
}

// DefaultRemoteConfig returns defaults for a local detection server.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Endpoint:   "ws://127.0.0.1:8880/v1/wakeword/stream",
		WakeWords:  []string{"jarvis"},
		Threshold:  0.5,
		SampleRate: 16000,
		Timeout:    5 * time.Second,
	}
}

// Remote streams microphone audio to a detection server and reports the
// wake_word events it sends back. The connection is made on the first
// Detect and re-made on the next Detect after a failure.
type Remote struct {
	cfg RemoteConfig

	mu       sync.Mutex
	conn     *websocket.Conn
	detected int
	lastWord string
	readErr  error
	closed   bool
}

// NewRemote creates a detector. No connection is made until Detect.
func NewRemote(cfg RemoteConfig) *Remote {
	defaults := DefaultRemoteConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if len(cfg.WakeWords) == 0 {
		cfg.WakeWords = defaults.WakeWords
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaults.SampleRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Remote{cfg: cfg}
}

// Name returns "remote".
func (r *Remote) Name() string { return "remote" }

// SampleRate returns the configured rate.
func (r *Remote) SampleRate() int { return r.cfg.SampleRate }

// Detect sends chunk and reports whether any detection arrived since the
// previous call. Detections are delivered asynchronously, so one may be
// reported a chunk or two after the audio that caused it.
func (r *Remote) Detect(chunk []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	if r.readErr != nil {
		err := r.readErr
		r.readErr = nil
		r.dropConnLocked()
		return false, fmt.Errorf("remote wake word: %w", err)
	}
	if r.conn == nil {
		if err := r.connectLocked(); err != nil {
			return false, err
		}
	}

	_ = r.conn.SetWriteDeadline(time.Now().Add(r.cfg.Timeout))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		r.dropConnLocked()
		return false, fmt.Errorf("remote wake word: send audio: %w", err)
	}

	if r.detected == 0 {
		return false, nil
	}
	r.detected = 0
	return true, nil
}

// LastWakeWord returns the most recently detected wake word.
func (r *Remote) LastWakeWord() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastWord
}

func (r *Remote) connectLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, r.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("remote wake word: failed to connect: %w", err)
	}

	configMsg := map[string]interface{}{
		"type":        "wake_word_config",
		"enabled":     true,
		"wake_words":  r.cfg.WakeWords,
		"threshold":   r.cfg.Threshold,
		"sample_rate": r.cfg.SampleRate,
		"timestamp":   float64(time.Now().UnixNano()) / 1e9,
	}
	data, err := json.Marshal(configMsg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("remote wake word: failed to marshal config: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return fmt.Errorf("remote wake word: failed to send config: %w", err)
	}

	r.conn = conn
	go r.listen(conn)

	log.Info().
		Str("endpoint", r.cfg.Endpoint).
		Strs("wake_words", r.cfg.WakeWords).
		Float64("threshold", r.cfg.Threshold).
		Msg("remote wake word detector connected")
	return nil
}

func (r *Remote) listen(conn *websocket.Conn) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			if r.conn == conn && !r.closed {
				r.readErr = err
			}
			r.mu.Unlock()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event WakeWordEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Warn().Err(err).Str("message", string(message)).Msg("remote wake word: failed to parse event")
			continue
		}
		if event.Type != "wake_word" {
			continue
		}

		r.mu.Lock()
		r.detected++
		r.lastWord = event.WakeWord
		r.mu.Unlock()

		log.Debug().
			Str("wake_word", event.WakeWord).
			Float64("confidence", event.Confidence).
			Msg("remote wake word detected")
	}
}

func (r *Remote) dropConnLocked() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.detected = 0
}

// Close ends the connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn != nil {
		_ = r.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	r.dropConnLocked()
	return nil
}
