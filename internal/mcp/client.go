// Package mcp wraps the MCP SDK client that talks to the Airbnb tool server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotConnected is returned when a call is made without a live session.
	ErrNotConnected = errors.New("mcp client not connected")
	// ErrToolTimeout is returned when a tool call exceeds its deadline.
	ErrToolTimeout = errors.New("mcp tool call timed out")
)

// DefaultCallTimeout bounds every tool call unless overridden.
const DefaultCallTimeout = 60 * time.Second

// ServerConfig holds the configuration for launching the tool server.
type ServerConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Transport string            `json:"transport" yaml:"transport"` // "stdio"
	Command   string            `json:"command" yaml:"command"`
	Args      []string          `json:"args" yaml:"args"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// DefaultServerConfig launches the published Airbnb MCP server through npx.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:      "airbnb",
		Transport: "stdio",
		Command:   "npx",
		Args:      []string{"-y", "@openbnb/mcp-server-airbnb", "--ignore-robots-txt"},
	}
}

// ToolInfo describes a tool available on the server.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Part is one content item of a tool result. It is either a TextPart or an OtherPart.
type Part interface {
	isPart()
}

// TextPart carries a text payload.
type TextPart struct {
	Text string
}

// OtherPart stands for any non-text content item (images, audio, resources).
type OtherPart struct {
	Kind string
}

func (TextPart) isPart()  {}
func (OtherPart) isPart() {}

// ToolResult is a tool call result with its content classified into parts.
type ToolResult struct {
	Parts   []Part
	IsError bool
}

// FirstText returns the first text payload of the result.
func (r *ToolResult) FirstText() (string, bool) {
	for _, p := range r.Parts {
		if tp, ok := p.(TextPart); ok {
			return tp.Text, true
		}
	}
	return "", false
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the transport built from the server config.
func WithTransport(t mcpsdk.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithCallTimeout sets the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client owns a single connection to the tool server. Calls are serialized.
type Client struct {
	config    ServerConfig
	transport mcpsdk.Transport
	timeout   time.Duration
	logger    *slog.Logger

	group singleflight.Group

	// calls admits one tool call at a time. mu guards session alone.
	calls   *semaphore.Weighted
	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// NewClient creates a new MCP client for the given server config.
func NewClient(config ServerConfig, opts ...Option) *Client {
	c := &Client{
		config:  config,
		timeout: DefaultCallTimeout,
		logger:  slog.Default(),
		calls:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the server, completes the initialize handshake, and lists
// tools to confirm the session is live. Concurrent callers share one attempt.
// For stdio servers ctx also bounds the lifetime of the server process.
func (c *Client) Connect(ctx context.Context) error {
	_, err, _ := c.group.Do("connect", func() (interface{}, error) {
		if c.Connected() {
			return nil, nil
		}
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Client) connect(ctx context.Context) error {
	transport, err := c.buildTransport(ctx)
	if err != nil {
		return err
	}

	impl := &mcpsdk.Implementation{
		Name:    "airbnb-assistant",
		Version: "0.1.0",
	}
	client := mcpsdk.NewClient(impl, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp connect to %s: %w", c.config.Name, err)
	}

	tools, err := listTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("mcp verify %s: %w", c.config.Name, err)
	}
	for _, t := range tools {
		c.logger.Debug("tool available", "server", c.config.Name, "tool", t.Name)
	}
	c.logger.Info("connected to tool server", "server", c.config.Name, "tools", len(tools))

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

func (c *Client) buildTransport(ctx context.Context) (mcpsdk.Transport, error) {
	if c.transport != nil {
		return c.transport, nil
	}

	switch c.config.Transport {
	case "", "stdio":
		if c.config.Command == "" {
			return nil, fmt.Errorf("mcp server %s: command is required", c.config.Name)
		}
		cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
		if len(c.config.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range c.config.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	default:
		return nil, fmt.Errorf("unsupported MCP transport: %s", c.config.Transport)
	}
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	return c.current() != nil
}

func (c *Client) current() *mcpsdk.ClientSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func listTools(ctx context.Context, session *mcpsdk.ClientSession) ([]ToolInfo, error) {
	var tools []ToolInfo
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return tools, nil
}

// CallTool invokes a tool under the client's call timeout.
// Only one call is in flight at a time; a queued caller gives up when ctx ends.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if err := c.calls.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("mcp call tool %s: waiting for turn: %w", name, err)
	}
	defer c.calls.Release(1)
	session := c.current()
	if session == nil {
		return nil, ErrNotConnected
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := session.CallTool(callCtx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, name, c.timeout)
		}
		return nil, fmt.Errorf("mcp call tool %s: %w", name, err)
	}

	return classify(result), nil
}

func classify(result *mcpsdk.CallToolResult) *ToolResult {
	out := &ToolResult{IsError: result.IsError}
	for _, content := range result.Content {
		switch v := content.(type) {
		case *mcpsdk.TextContent:
			out.Parts = append(out.Parts, TextPart{Text: v.Text})
		case *mcpsdk.ImageContent:
			out.Parts = append(out.Parts, OtherPart{Kind: "image"})
		case *mcpsdk.AudioContent:
			out.Parts = append(out.Parts, OtherPart{Kind: "audio"})
		default:
			out.Parts = append(out.Parts, OtherPart{Kind: fmt.Sprintf("%T", content)})
		}
	}
	return out
}

// Close closes the session. It is safe to call more than once or before Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("mcp close %s: %w", c.config.Name, err)
	}
	return nil
}
