package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		settings     Settings
		input        string
		wantProvider Provider
		wantModel    string
	}{
		{"anthropic prefix", Settings{}, "anthropic/claude-3", ProviderAnthropic, "claude-3"},
		{"openai prefix", Settings{}, "openai/gpt-4o-mini", ProviderOpenAI, "gpt-4o-mini"},
		{"ollama prefix", Settings{}, "ollama/llama3.2", ProviderOllama, "llama3.2"},
		{"case-insensitive prefix", Settings{}, "Ollama/qwen2", ProviderOllama, "qwen2"},
		{"claude inferred", Settings{OllamaHost: "http://gpu-box:11434"}, "claude-sonnet-4-20250514", ProviderAnthropic, "claude-sonnet-4-20250514"},
		{"gpt inferred", Settings{}, "gpt-4o", ProviderOpenAI, "gpt-4o"},
		{"o3 inferred", Settings{}, "o3-mini", ProviderOpenAI, "o3-mini"},
		{"unknown defaults to anthropic", Settings{}, "mistral", ProviderAnthropic, "mistral"},
		{"ollama host configured", Settings{OllamaHost: "http://gpu-box:11434", OpenAIAPIKey: "sk-test"}, "mistral", ProviderOllama, "mistral"},
		{"openai key configured", Settings{OpenAIAPIKey: "sk-test"}, "mistral", ProviderOpenAI, "mistral"},
		{"unknown prefix kept", Settings{}, "hf/mistral", ProviderAnthropic, "hf/mistral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := tt.settings.Resolve(tt.input)
			if p != tt.wantProvider || m != tt.wantModel {
				t.Errorf("Resolve(%q) = (%s, %s), want (%s, %s)", tt.input, p, m, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestResolveIgnoresProcessEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	if p, _ := (Settings{}).Resolve("mistral"); p != ProviderAnthropic {
		t.Errorf("provider = %s, want anthropic", p)
	}
}

func TestSettingsNewClient(t *testing.T) {
	tests := []struct {
		model    string
		settings Settings
		want     string
	}{
		{"claude-sonnet-4-20250514", Settings{AnthropicAPIKey: "sk-ant"}, "*llm.AnthropicClient"},
		{"openai/gpt-4o", Settings{OpenAIAPIKey: "sk-test"}, "*llm.OpenAIClient"},
		{"openai/gpt-4o", Settings{OpenAIBaseURL: "http://localhost:8080/v1/"}, "*llm.OpenAIClient"},
		{"ollama/llama3.2", Settings{}, "*llm.OpenAIClient"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			c, _ := tt.settings.NewClient(tt.model)
			if got := fmt.Sprintf("%T", c); got != tt.want {
				t.Errorf("client = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient(
		MockResponse{Content: "first"},
		MockResponse{Content: "second"},
	)
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		resp, err := m.Chat(ctx, ChatRequest{Messages: UserText("q")})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Content != want {
			t.Errorf("Content = %q, want %q", resp.Content, want)
		}
	}
	if got := len(m.Calls()); got != 3 {
		t.Errorf("Calls = %d, want 3", got)
	}
}

func TestMockClientErrors(t *testing.T) {
	if _, err := NewMockClient().Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error with no responses")
	}

	boom := errors.New("boom")
	_, err := NewMockClient(MockResponse{Error: boom}).Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestOpenAIClientChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"request_type\":\"search\"}"}}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(srv.URL+"/", "key", option.WithMaxRetries(0))
	temp := 0.0
	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:       "gpt-4o",
		System:      "extract",
		Messages:    UserText("homes in Austin"),
		MaxTokens:   256,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"request_type":"search"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != StopEndTurn {
		t.Errorf("StopReason = %s", resp.StopReason)
	}
	if resp.Usage.Total() != 18 {
		t.Errorf("Usage.Total = %d, want 18", resp.Usage.Total())
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
	if got["model"] != "gpt-4o" {
		t.Errorf("model = %v", got["model"])
	}
}

func TestOpenAIClientChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, `{"error":{"message":"down"}}`},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAICompatibleClient(srv.URL+"/", "key", option.WithMaxRetries(0))
			if _, err := c.Chat(context.Background(), ChatRequest{Model: "m", Messages: UserText("q")}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAnthropicClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"request_type\":"}, {"type": "text", "text": "\"details\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(
		anthropicoption.WithBaseURL(srv.URL),
		anthropicoption.WithAPIKey("test"),
		anthropicoption.WithMaxRetries(0),
	)
	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:     "claude-sonnet-4-20250514",
		System:    "extract",
		Messages:  UserText("listing 123"),
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"request_type":"details"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != StopEndTurn {
		t.Errorf("StopReason = %s", resp.StopReason)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.OutputTokens != 4 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestMapOAIStopReason(t *testing.T) {
	tests := map[string]StopReason{
		"stop":           StopEndTurn,
		"length":         StopMaxTokens,
		"content_filter": StopReason("content_filter"),
	}
	for in, want := range tests {
		if got := mapOAIStopReason(in); got != want {
			t.Errorf("mapOAIStopReason(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewOllamaClientDefaults(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, option.WithMaxRetries(0))
	if _, err := c.Chat(context.Background(), ChatRequest{Model: "llama3.2", Messages: UserText("q")}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if path != "/v1/chat/completions" {
		t.Errorf("path = %s, want /v1/chat/completions", path)
	}
}
