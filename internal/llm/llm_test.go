package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/normanking/wakeloop/internal/config"
)

func TestOllama_ChatStreamsAndAccumulates(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Model: "llama3.2", Message: ollamaMessage{Role: "assistant", Content: "Lights "}})
		enc.Encode(ollamaChatResponse{Model: "llama3.2", Message: ollamaMessage{Role: "assistant", Content: "on. "}})
		enc.Encode(ollamaChatResponse{Model: "llama3.2", Done: true, DoneReason: "stop", PromptEvalCount: 12, EvalCount: 3})
	}))
	defer server.Close()

	p := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL})
	resp, err := p.Chat(context.Background(), &ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: RoleUser, Content: "turn on lights"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Lights on.", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.TokensUsed())

	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "turn on lights", got.Messages[1].Content)
	assert.Equal(t, "llama3.2", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, 256, got.Options.NumPredict)
}

func TestOllama_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL}).Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllama_EmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{Done: true})
	}))
	defer server.Close()

	_, err := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL}).Chat(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOllama_CancelledMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 20; i++ {
			json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "token "}})
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err := NewOllamaProvider(&ProviderConfig{Endpoint: server.URL}).Chat(ctx, &ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllama_Available(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"with models", `{"models":[{"name":"llama3.2"}]}`, true},
		{"no models", `{"models":[]}`, false},
		{"garbage", `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()
			assert.Equal(t, tt.want, NewOllamaProvider(&ProviderConfig{Endpoint: server.URL}).Available())
		})
	}
}

func TestOpenAI_ChatCompletion(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " Done. "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 2, "total_tokens": 22}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(&ProviderConfig{Endpoint: server.URL + "/v1/", APIKey: "sk-test"})
	resp, err := p.Chat(context.Background(), &ChatRequest{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "turn on lights"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Content)
	assert.Equal(t, 22, resp.TokensUsed())

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "gpt-4o-mini", body["model"])
}

func TestOpenAI_RequiresKey(t *testing.T) {
	p := NewGroqProvider(&ProviderConfig{})
	assert.False(t, p.Available())
	assert.Equal(t, "groq", p.Name())
	_, err := p.Chat(context.Background(), &ChatRequest{})
	assert.Error(t, err)
}

func TestGeminiRequest_MapsRolesAndSystemPrompt(t *testing.T) {
	cfg, contents := geminiRequest(&ChatRequest{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "bye"},
		},
	}, 128, 0.5)

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
	assert.Equal(t, int32(128), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
}

type fakeProvider struct {
	resp *ChatResponse
	err  error
}

func (f *fakeProvider) Chat(context.Context, *ChatRequest) (*ChatResponse, error) {
	return f.resp, f.err
}
func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Available() bool { return true }

func TestMetricsProvider_Counts(t *testing.T) {
	fake := &fakeProvider{resp: &ChatResponse{Content: "ok", PromptTokens: 10, CompletionTokens: 5}}
	m := NewMetricsProvider(fake)

	_, err := m.Chat(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	fake.err = errors.New("boom")
	_, err = m.Chat(context.Background(), &ChatRequest{})
	require.Error(t, err)

	s := m.Stats()
	assert.Equal(t, int64(2), s.Calls)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(10), s.InputTokens)
	assert.Equal(t, int64(5), s.OutputTokens)
	assert.Contains(t, s.String(), "fake: 2 calls")
	assert.Same(t, fake, m.Unwrap())
	assert.Equal(t, "fake: no calls", Stats{Provider: "fake"}.String())
}

func TestNewProvider_FromConfig(t *testing.T) {
	cfg := config.Default()
	for _, name := range ProviderNames() {
		cfg.LLM.DefaultProvider = name
		p, err := NewProvider(cfg)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}

	cfg.LLM.DefaultProvider = "anthropic"
	_, err := NewProvider(cfg)
	assert.Error(t, err)

	_, err = NewProviderByName("mystery", nil)
	assert.Error(t, err)
}
