package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wakeloop/internal/llm"
)

type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, *req)
	if p.err != nil {
		return nil, p.err
	}
	reply := "ok"
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
	}
	return &llm.ChatResponse{Content: reply}, nil
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) Available() bool { return true }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *fakeClock                   { return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)} }
func testConfig() Config                     { return Config{SystemPrompt: "be glados", IdleTimeout: time.Minute} }
func roles(msgs []llm.Message) (out []string) {
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

func TestSession_SendsFullHistoryInOrder(t *testing.T) {
	p := &scriptedProvider{replies: []string{"first", "second"}}
	clock := newClock()
	s := New(p, testConfig(), WithClock(clock.now))

	reply, err := s.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)

	clock.advance(10 * time.Second)
	reply, err = s.Chat(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "second", reply)

	require.Len(t, p.requests, 2)
	last := p.requests[1]
	assert.Equal(t, "be glados", last.SystemPrompt)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "first"},
		{Role: llm.RoleUser, Content: "again"},
	}, last.Messages)

	assert.Equal(t, []string{"system", "user", "assistant", "user", "assistant"}, roles(s.History()))
}

func TestSession_IdleTimeoutResetsHistory(t *testing.T) {
	p := &scriptedProvider{}
	clock := newClock()
	s := New(p, testConfig(), WithClock(clock.now))

	for _, text := range []string{"one", "two"} {
		_, err := s.Chat(context.Background(), text)
		require.NoError(t, err)
	}
	require.Len(t, s.History(), 5)

	clock.advance(61 * time.Second)
	_, err := s.Chat(context.Background(), "three")
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, "three", history[1].Content)
	assert.Len(t, p.requests[2].Messages, 1)
}

func TestSession_TimeoutIsExclusive(t *testing.T) {
	clock := newClock()
	s := New(&scriptedProvider{}, testConfig(), WithClock(clock.now))

	_, err := s.Chat(context.Background(), "one")
	require.NoError(t, err)
	clock.advance(time.Minute)
	_, err = s.Chat(context.Background(), "two")
	require.NoError(t, err)

	assert.Len(t, s.History(), 5)
}

func TestSession_BackendFailureRollsBackUserTurn(t *testing.T) {
	boom := errors.New("connection refused")
	p := &scriptedProvider{}
	s := New(p, testConfig(), WithClock(newClock().now))

	_, err := s.Chat(context.Background(), "one")
	require.NoError(t, err)

	p.err = boom
	_, err = s.Chat(context.Background(), "two")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "chat: scripted")
	assert.Len(t, p.requests, 2, "no retry")

	assert.Equal(t, []string{"system", "user", "assistant"}, roles(s.History()))
}

func TestSession_ResetAndEmptyInput(t *testing.T) {
	s := New(&scriptedProvider{}, testConfig(), WithClock(newClock().now))

	_, err := s.Chat(context.Background(), "   ")
	assert.Error(t, err)

	_, err = s.Chat(context.Background(), "hi")
	require.NoError(t, err)
	s.Reset()
	assert.Equal(t, []llm.Message{{Role: llm.RoleSystem, Content: "be glados"}}, s.History())
}

func TestSession_HistoryIsACopy(t *testing.T) {
	s := New(&scriptedProvider{}, testConfig())
	h := s.History()
	h[0].Content = "mutated"
	assert.Equal(t, "be glados", s.History()[0].Content)
}

func TestNew_DefaultsIdleTimeout(t *testing.T) {
	s := New(&scriptedProvider{}, Config{})
	assert.Equal(t, DefaultIdleTimeout, s.cfg.IdleTimeout)
	assert.Equal(t, "scripted", s.Provider())
}
