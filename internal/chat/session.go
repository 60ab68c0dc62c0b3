// Package chat keeps a short-lived conversation with a chat backend.
//
// The history is forgotten after a period of inactivity, so a new wake
// after a long pause starts from the system prompt again.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/llm"
)

// Config controls a Session.
type Config struct {
	SystemPrompt string
	Model        string
	IdleTimeout  time.Duration
	MaxTokens    int
	Temperature  float64
}

// DefaultIdleTimeout is how long a conversation survives without a turn.
const DefaultIdleTimeout = 60 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Session is a conversation with a single backend. It is safe for
// concurrent use, though turns are serialised.
type Session struct {
	provider llm.Provider
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	history  []llm.Message
	lastTurn time.Time
}

// New creates a session that starts from the system prompt.
func New(provider llm.Provider, cfg Config, opts ...Option) *Session {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	s := &Session{
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.Logger.With().Str("component", "chat").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = s.initial()
	s.lastTurn = s.now()
	return s
}

func (s *Session) initial() []llm.Message {
	return []llm.Message{{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt}}
}

// Chat sends userText with the full history and returns the reply. The
// backend is called exactly once. If it fails the user turn is dropped
// again so the history keeps alternating.
func (s *Session) Chat(ctx context.Context, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", fmt.Errorf("chat: empty message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if idle := now.Sub(s.lastTurn); idle > s.cfg.IdleTimeout {
		if len(s.history) > 1 {
			s.logger.Debug().Dur("idle", idle).Int("dropped", len(s.history)-1).Msg("conversation expired")
		}
		s.history = s.initial()
	}

	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: userText})

	resp, err := s.provider.Chat(ctx, &llm.ChatRequest{
		Model:        s.cfg.Model,
		SystemPrompt: s.history[0].Content,
		Messages:     append([]llm.Message(nil), s.history[1:]...),
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return "", fmt.Errorf("chat: %s: %w", s.provider.Name(), err)
	}

	reply := strings.TrimSpace(resp.Content)
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
	s.lastTurn = s.now()

	s.logger.Debug().
		Int("turns", (len(s.history)-1)/2).
		Int("tokens", resp.TokensUsed()).
		Dur("duration", resp.Duration).
		Msg("chat turn complete")
	return reply, nil
}

// History returns a copy of the conversation, system prompt first.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Reset forgets everything but the system prompt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.initial()
	s.lastTurn = s.now()
}

// Provider returns the backend name.
func (s *Session) Provider() string { return s.provider.Name() }
