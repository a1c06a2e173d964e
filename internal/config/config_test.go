package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szaher/airbnb-assistant/internal/llm"
)

// chdirTemp moves into an empty directory so no stray .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "airbnb_assistant", cfg.AgentName)
	assert.Equal(t, ":8004", cfg.Addr())
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.ExtractionModel)
	assert.Empty(t, cfg.ExtractionAddress)
	assert.Equal(t, 15*time.Second, cfg.WatchdogDelay)
	assert.Equal(t, time.Second, cfg.FollowUpDelay)
	assert.Equal(t, 60*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "San Francisco", cfg.FallbackLocation)
	assert.Equal(t, 2, cfg.FallbackLimit)
	assert.Equal(t, 4, cfg.SearchLimit)

	q := cfg.Quota()
	assert.Equal(t, 30, q.MaxRequests)
	assert.Equal(t, time.Hour, q.Window)

	sc := cfg.ToolServer()
	assert.Equal(t, "npx", sc.Command)
	assert.Equal(t, []string{"-y", "@openbnb/mcp-server-airbnb", "--ignore-robots-txt"}, sc.Args)
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9100")
	t.Setenv("WATCHDOG_DELAY", "3s")
	t.Setenv("AGENT_ENDPOINTS", "extractor=http://localhost:8005,user=http://localhost:9000")
	t.Setenv("TOOL_SERVER_COMMAND", "node")
	t.Setenv("TOOL_SERVER_ARGS", "dist/index.js,--ignore-robots-txt")
	t.Setenv("AGENT_API_KEY", "shared-secret")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, llm.Settings{OpenAIAPIKey: "sk-test", OllamaHost: "http://gpu-box:11434"}, cfg.LLM())
	assert.Equal(t, ":9100", cfg.Addr())
	assert.Equal(t, 3*time.Second, cfg.WatchdogDelay)
	assert.Equal(t, "shared-secret", cfg.APIKey)
	assert.Equal(t, map[string]string{
		"extractor": "http://localhost:8005",
		"user":      "http://localhost:9000",
	}, cfg.Endpoints)

	sc := cfg.ToolServer()
	assert.Equal(t, "node", sc.Command)
	assert.Equal(t, []string{"dist/index.js", "--ignore-robots-txt"}, sc.Args)
}

func TestLoadEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "assistant.env")
	require.NoError(t, os.WriteFile(path, []byte("FALLBACK_LOCATION=Lisbon\nSEARCH_LIMIT=6\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("FALLBACK_LOCATION")
		os.Unsetenv("SEARCH_LIMIT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", cfg.FallbackLocation)
	assert.Equal(t, 6, cfg.SearchLimit)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadToolServerFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: airbnb-local
command: /usr/local/bin/mcp-server-airbnb
args: ["--ignore-robots-txt"]
env:
  NODE_ENV: production
`), 0o644))
	t.Setenv("TOOL_SERVER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	sc := cfg.ToolServer()
	assert.Equal(t, "airbnb-local", sc.Name)
	assert.Equal(t, "stdio", sc.Transport)
	assert.Equal(t, "/usr/local/bin/mcp-server-airbnb", sc.Command)
	assert.Equal(t, []string{"--ignore-robots-txt"}, sc.Args)
	assert.Equal(t, "production", sc.Env["NODE_ENV"])
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"bad duration", "WATCHDOG_DELAY", "soon"},
		{"zero watchdog", "WATCHDOG_DELAY", "0s"},
		{"zero search limit", "SEARCH_LIMIT", "0"},
		{"missing tool file", "TOOL_SERVER_CONFIG", "/nonexistent/tools.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
