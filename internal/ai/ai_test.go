package ai

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

	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/config"
	"github.com/Ananth-NQI/chatdesk-backend/internal/models"
)

type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, req Request) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	boom := errors.New("boom")
	first := &stubProvider{name: "first", err: boom}
	second := &stubProvider{name: "second", reply: "  hello there  "}
	third := &stubProvider{name: "third", reply: "unused"}

	reply, err := NewChain(time.Second, first, second, third).Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestChainCollectsFailures(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(0,
		&stubProvider{name: "a", err: boom},
		&stubProvider{name: "b", reply: "   "},
	)

	_, err := chain.Generate(context.Background(), Request{})
	require.Error(t, err)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Failures, 2)
	assert.Equal(t, "a", chainErr.Failures[0].Provider)
	assert.Equal(t, "b", chainErr.Failures[1].Provider)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Contains(t, err.Error(), "all 2 providers failed")
}

func TestChainWithoutProviders(t *testing.T) {
	_, err := NewChain(0).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestOpenAIProvider(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Sure, our logo package is PKR 8000."}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{Name: "deepseek", APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "deepseek-chat"})
	reply, err := p.Generate(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "logo?"}},
		Intent:   "PRICING_INQUIRY",
		Service:  "Logo Design",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sure, our logo package is PKR 8000.", reply)
	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "be brief")
	assert.Contains(t, got.Messages[0].Content, "detected intent: PRICING_INQUIRY")
	assert.Contains(t, got.Messages[0].Content, "service discussed: Logo Design")
	assert.Equal(t, "logo?", got.Messages[1].Content)
	assert.Equal(t, "deepseek", p.Name())
}

func TestOpenAIProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGeminiProvider(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"))
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Assalam o Alaikum! "},{"text":"How can I help?"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGemini(GeminiConfig{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-test"})
	reply, err := p.Generate(context.Background(), Request{
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "salam"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "help"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Assalam o Alaikum! How can I help?", reply)
	require.NotNil(t, got.SystemInstruction)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "model", got.Contents[1].Role)
}

func TestGeminiProviderEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL}).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRequestSystemText(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"system only", Request{System: "be brief"}, "be brief"},
		{"intent", Request{System: "be brief", Intent: "FAQ"}, "be brief\n\nContext for the latest customer message:\n- detected intent: FAQ"},
		{"intent and service", Request{Intent: "GENERAL_CHAT", Service: "SEO"}, "Context for the latest customer message:\n- detected intent: GENERAL_CHAT\n- service discussed: SEO"},
		{"empty", Request{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.SystemText())
		})
	}
}

func TestSystemPromptListsServices(t *testing.T) {
	prompt := SystemPrompt(catalog.Default())
	assert.Contains(t, prompt, "Pixel Bazaar")
	assert.Contains(t, prompt, "Logo Design: PKR 8000, 3 days.")
}

func TestHistoryMessages(t *testing.T) {
	msgs := HistoryMessages([]*models.Message{
		{Sender: models.SenderCustomer, Body: "hi"},
		{Sender: models.SenderBot, Body: "hello"},
		{Sender: models.SenderSystem, Body: "handoff created"},
		{Sender: models.SenderHuman, Body: "this is Sara"},
		{Sender: models.SenderCustomer, Body: "  "},
	})
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleAssistant, Content: "this is Sara"},
	}, msgs)
}

func TestNewChainFromConfigSkipsUnconfigured(t *testing.T) {
	cfg := &config.Config{
		AIProviders:  []string{"gemini", "openai", "groq", "unknown"},
		OpenAIAPIKey: "sk",
		GroqAPIKey:   "gq",
		AITimeout:    time.Second,
	}
	chain := NewChainFromConfig(cfg)
	assert.Equal(t, 2, chain.Len())
	assert.Equal(t, "chain(openai,groq)", chain.Name())
}
