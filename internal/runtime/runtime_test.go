package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/chat"
	"github.com/szaher/airbnb-assistant/internal/config"
	"github.com/szaher/airbnb-assistant/internal/llm"
	"github.com/szaher/airbnb-assistant/internal/mcp"
)

const assistantAddress = "airbnb_assistant"

func testConfig() config.Config {
	return config.Config{
		AgentName:        "airbnb_assistant",
		AgentAddress:     assistantAddress,
		Port:             0,
		ExtractionModel:  "mock",
		WatchdogDelay:    time.Minute,
		ToolTimeout:      5 * time.Second,
		FallbackLocation: "San Francisco",
		FallbackLimit:    2,
		SearchLimit:      4,
		RateLimitMax:     30,
		RateLimitWindow:  time.Hour,
	}
}

// toolServer starts an in-memory Airbnb tool server with a single listing
// per search and returns the client side of the transport.
func toolServer(t *testing.T) mcpsdk.Transport {
	t.Helper()
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "fake-airbnb", Version: "test"}, nil)
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: mcp.SearchTool}, func(_ context.Context, _ *mcpsdk.CallToolRequest, in map[string]any) (*mcpsdk.CallToolResult, any, error) {
		body, _ := json.Marshal(map[string]any{"searchResults": []any{
			map[string]any{
				"id":  "42",
				"url": "https://www.airbnb.com/rooms/42",
				"demandStayListing": map[string]any{
					"description": map[string]any{
						"name": map[string]any{"localizedStringWithTranslationPreference": "Loft near " + in["location"].(string)},
					},
				},
			},
		}})
		return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}}}, nil, nil
	})

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	return clientTransport
}

// userEndpoint collects envelopes sent back to the user.
func userEndpoint(t *testing.T) (*httptest.Server, <-chan agent.Envelope) {
	t.Helper()
	got := make(chan agent.Envelope, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env agent.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got <- env
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newRuntime(t *testing.T, client llm.Client, connect bool) *Runtime {
	t.Helper()
	opts := Options{
		Logger:    slog.New(slog.DiscardHandler),
		LLMClient: client,
	}
	if connect {
		opts.MCPOptions = []mcp.Option{mcp.WithTransport(toolServer(t))}
	}
	rt, err := New(testConfig(), opts)
	require.NoError(t, err)
	if connect {
		require.True(t, rt.Tools().Connect(context.Background()))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

func post(t *testing.T, h http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, agent.MessagesPath, bytes.NewReader(body))
	req.Header.Set("X-Correlation-ID", "corr-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sealJSON(t *testing.T, sender, target string, msg agent.Message) []byte {
	t.Helper()
	env, err := agent.Seal(sender, target, "s1", msg)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func receive(t *testing.T, ch <-chan agent.Envelope) agent.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("no envelope delivered")
		return agent.Envelope{}
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		connect    bool
		wantStatus int
		wantHealth string
	}{
		{"tools connected", true, http.StatusOK, "healthy"},
		{"tools not connected", false, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t, llm.NewMockClient(), tt.connect)
			w := httptest.NewRecorder()
			rt.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "airbnb_assistant", body["agent_name"])
			assert.Equal(t, tt.wantHealth, body["status"])
			assert.NotEmpty(t, body["uptime"])
		})
	}
}

func TestMessageRejections(t *testing.T) {
	rt := newRuntime(t, llm.NewMockClient(), false)

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"malformed", []byte(`{`), http.StatusBadRequest},
		{"missing sender", sealJSON(t, "", assistantAddress, chat.NewText("hi", false)), http.StatusBadRequest},
		{"wrong target", sealJSON(t, "user", "someone_else", chat.NewText("hi", false)), http.StatusNotFound},
		{"unsupported schema", []byte(`{"sender":"user","target":"airbnb_assistant","schema":"nope","payload":{}}`), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, rt.Handler(), tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestChatRoundTrip(t *testing.T) {
	user, inbox := userEndpoint(t)
	client := llm.NewMockClient(llm.MockResponse{
		Content: `{"request_type": "search", "parameters": {"location": "Austin"}}`,
	})
	rt := newRuntime(t, client, true)

	msg := chat.NewText("somewhere in Austin please", false)
	w := post(t, rt.Handler(), sealJSON(t, user.URL, assistantAddress, msg))
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, "accepted", accepted["status"])
	assert.Equal(t, "corr-1", accepted["correlation_id"])

	ack := receive(t, inbox)
	require.Equal(t, chat.KindAcknowledgement, ack.Schema)
	var a chat.Acknowledgement
	require.NoError(t, ack.Open(&a))
	assert.Equal(t, msg.MsgID, a.AcknowledgedMsgID)

	reply := receive(t, inbox)
	require.Equal(t, chat.KindMessage, reply.Schema)
	assert.Equal(t, "s1", reply.Session)
	var answer chat.Message
	require.NoError(t, reply.Open(&answer))
	assert.Contains(t, answer.Text(), "AIRBNB LISTINGS IN AUSTIN")
	assert.Contains(t, answer.Text(), "Loft near Austin")

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "somewhere in Austin please")
}

func TestMetricsEndpoint(t *testing.T) {
	user, inbox := userEndpoint(t)
	rt := newRuntime(t, llm.NewMockClient(), true)

	w := post(t, rt.Handler(), sealJSON(t, user.URL, assistantAddress, chat.NewText("hello", false)))
	require.Equal(t, http.StatusAccepted, w.Code)
	receive(t, inbox)

	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `airbnb_messages_total{schema="chat_message"}`), rec.Body.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	rt := newRuntime(t, llm.NewMockClient(), true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMessagesRequireKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "shared-secret"
	rt, err := New(cfg, Options{Logger: slog.New(slog.DiscardHandler), LLMClient: llm.NewMockClient()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	body := sealJSON(t, "user", assistantAddress, chat.NewText("hi", false))

	w := post(t, rt.Handler(), body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, agent.MessagesPath, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer shared-secret")
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	health := httptest.NewRecorder()
	rt.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEqual(t, http.StatusUnauthorized, health.Code)
}
