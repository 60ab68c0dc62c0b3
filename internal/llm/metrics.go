package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/metrics"
)

// MetricsProvider wraps a provider with timing and token accounting. It
// feeds the Prometheus series and keeps in-process totals that the chat REPL prints on exit.
type MetricsProvider struct {
	provider Provider
	name     string

	totalCalls   atomic.Int64
	totalErrors  atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64

	mu           sync.Mutex
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
}

// Stats is a snapshot of a MetricsProvider.
type Stats struct {
	Provider     string
	Calls        int64
	Errors       int64
	InputTokens  int64
	OutputTokens int64
	AvgLatency   time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration
}

// NewMetricsProvider wraps provider.
func NewMetricsProvider(provider Provider) *MetricsProvider {
	return &MetricsProvider{provider: provider, name: provider.Name()}
}

// Chat forwards to the wrapped provider and records the outcome.
func (m *MetricsProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	resp, err := m.provider.Chat(ctx, req)
	latency := time.Since(start)

	m.totalCalls.Add(1)
	m.mu.Lock()
	m.totalLatency += latency
	if m.minLatency == 0 || latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	m.mu.Unlock()

	metrics.LLMLatency.WithLabelValues(m.name).Observe(latency.Seconds())
	if err != nil {
		m.totalErrors.Add(1)
		metrics.LLMRequests.WithLabelValues(m.name, "error").Inc()
		log.Warn().Err(err).Str("provider", m.name).Dur("latency", latency).Msg("chat failed")
		return nil, err
	}

	metrics.LLMRequests.WithLabelValues(m.name, "ok").Inc()
	m.inputTokens.Add(int64(resp.PromptTokens))
	m.outputTokens.Add(int64(resp.CompletionTokens))
	metrics.LLMTokens.WithLabelValues(m.name, "input").Add(float64(resp.PromptTokens))
	metrics.LLMTokens.WithLabelValues(m.name, "output").Add(float64(resp.CompletionTokens))

	log.Info().
		Str("provider", m.name).
		Str("model", resp.Model).
		Int("tokens", resp.TokensUsed()).
		Dur("latency", latency).
		Msg("chat completed")
	return resp, nil
}

// Name implements Provider.
func (m *MetricsProvider) Name() string { return m.name }

// Available implements Provider.
func (m *MetricsProvider) Available() bool { return m.provider.Available() }

// Unwrap returns the underlying provider.
func (m *MetricsProvider) Unwrap() Provider { return m.provider }

// Stats returns the current totals.
func (m *MetricsProvider) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Provider:     m.name,
		Calls:        m.totalCalls.Load(),
		Errors:       m.totalErrors.Load(),
		InputTokens:  m.inputTokens.Load(),
		OutputTokens: m.outputTokens.Load(),
		MinLatency:   m.minLatency,
		MaxLatency:   m.maxLatency,
	}
	if s.Calls > 0 {
		s.AvgLatency = m.totalLatency / time.Duration(s.Calls)
	}
	return s
}

// String returns a one-line summary.
func (s Stats) String() string {
	if s.Calls == 0 {
		return fmt.Sprintf("%s: no calls", s.Provider)
	}
	return fmt.Sprintf("%s: %d calls, %d errors, %d/%d tokens, %v avg",
		s.Provider, s.Calls, s.Errors, s.InputTokens, s.OutputTokens, s.AvgLatency.Round(time.Millisecond))
}
