// Package config loads the assistant's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/llm"
	"github.com/szaher/airbnb-assistant/internal/mcp"
)

// Config stores environment-driven settings.
type Config struct {
	// AgentName is reported by health checks.
	AgentName string `env:"AGENT_NAME" envDefault:"airbnb_assistant"`
	// AgentAddress is the address other agents use to reach this one.
	AgentAddress string `env:"AGENT_ADDRESS" envDefault:"airbnb_assistant"`
	Port         int    `env:"PORT" envDefault:"8004"`

	// ExtractionAddress is the structured-output agent. When empty an
	// in-process agent backed by ExtractionModel is started.
	ExtractionAddress string `env:"EXTRACTION_ADDRESS"`
	ExtractionModel   string `env:"EXTRACTION_MODEL" envDefault:"claude-sonnet-4-20250514"`

	// Provider credentials for the in-process extraction model.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OllamaHost      string `env:"OLLAMA_HOST"`

	WatchdogDelay    time.Duration `env:"WATCHDOG_DELAY" envDefault:"15s"`
	FollowUpDelay    time.Duration `env:"FOLLOW_UP_DELAY" envDefault:"1s"`
	ToolTimeout      time.Duration `env:"TOOL_TIMEOUT" envDefault:"60s"`
	FallbackLocation string        `env:"FALLBACK_LOCATION" envDefault:"San Francisco"`
	FallbackLimit    int           `env:"FALLBACK_LIMIT" envDefault:"2"`
	SearchLimit      int           `env:"SEARCH_LIMIT" envDefault:"4"`

	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60m"`

	// APIKey, when set, is required as a bearer token on inbound envelopes
	// and sent on outbound ones.
	APIKey string `env:"AGENT_API_KEY"`

	// Endpoints maps agent addresses to base URLs, e.g. "extractor=http://localhost:8005".
	Endpoints map[string]string `env:"AGENT_ENDPOINTS" envSeparator:"," envKeyValSeparator:"="`

	ToolServerCommand string   `env:"TOOL_SERVER_COMMAND" envDefault:"npx"`
	ToolServerArgs    []string `env:"TOOL_SERVER_ARGS" envSeparator:"," envDefault:"-y,@openbnb/mcp-server-airbnb,--ignore-robots-txt"`
	// ToolServerConfig is an optional YAML file describing the tool server.
	// It takes precedence over the command and args above.
	ToolServerConfig string `env:"TOOL_SERVER_CONFIG"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	toolServer *mcp.ServerConfig
}

// Load reads envFile (or .env when present) into the process environment,
// parses Config from it, and loads the tool server file if one is named.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ToolServerConfig != "" {
		sc, err := LoadToolServer(cfg.ToolServerConfig)
		if err != nil {
			return Config{}, err
		}
		cfg.toolServer = &sc
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadToolServer reads a YAML tool server description. Missing fields take
// their values from mcp.DefaultServerConfig.
func LoadToolServer(path string) (mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.ServerConfig{}, fmt.Errorf("reading tool server config %q: %w", path, err)
	}
	sc := mcp.DefaultServerConfig()
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return mcp.ServerConfig{}, fmt.Errorf("parsing tool server config %q: %w", path, err)
	}
	return sc, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.AgentAddress == "" {
		errs = append(errs, errors.New("AGENT_ADDRESS must not be empty"))
	}
	if c.WatchdogDelay <= 0 {
		errs = append(errs, errors.New("WATCHDOG_DELAY must be positive"))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, errors.New("TOOL_TIMEOUT must be positive"))
	}
	if c.FollowUpDelay < 0 {
		errs = append(errs, errors.New("FOLLOW_UP_DELAY must not be negative"))
	}
	if c.FallbackLimit <= 0 || c.SearchLimit <= 0 {
		errs = append(errs, errors.New("FALLBACK_LIMIT and SEARCH_LIMIT must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ToolServer returns the tool server launch configuration.
func (c Config) ToolServer() mcp.ServerConfig {
	if c.toolServer != nil {
		return *c.toolServer
	}
	sc := mcp.DefaultServerConfig()
	if c.ToolServerCommand != "" {
		sc.Command = c.ToolServerCommand
		sc.Args = append([]string(nil), c.ToolServerArgs...)
	}
	return sc
}

// Quota returns the per-sender quota for direct requests.
func (c Config) Quota() agent.QuotaConfig {
	return agent.QuotaConfig{MaxRequests: c.RateLimitMax, Window: c.RateLimitWindow}
}

// LLM returns the provider settings for the extraction model.
func (c Config) LLM() llm.Settings {
	return llm.Settings{
		AnthropicAPIKey: c.AnthropicAPIKey,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		OllamaHost:      c.OllamaHost,
	}
}
