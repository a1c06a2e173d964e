package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

// Tool names exposed by @openbnb/mcp-server-airbnb.
const (
	SearchTool  = "airbnb_search"
	DetailsTool = "airbnb_listing_details"
)

// NotConnectedMessage is the failure message for calls made without a connection.
const NotConnectedMessage = "Not connected to Airbnb MCP server"

// DefaultSearchLimit is used when a caller passes a non-positive limit.
const DefaultSearchLimit = 4

// SearchOutcome is the result of a listing search. It never carries an error;
// failures are described by Success=false and Message.
type SearchOutcome struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	FormattedOutput string    `json:"formatted_output,omitempty"`
	Listings        []Listing `json:"listings,omitempty"`
	TotalListings   int       `json:"total_listings"`
}

// DetailsOutcome is the result of a listing details lookup.
type DetailsOutcome struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	FormattedOutput string         `json:"formatted_output,omitempty"`
	Details         *ListingDetail `json:"details,omitempty"`
}

// ToolClientOption configures a ToolClient.
type ToolClientOption func(*ToolClient)

// WithMetrics records tool call outcomes on m.
func WithMetrics(m *telemetry.Metrics) ToolClientOption {
	return func(t *ToolClient) { t.metrics = m }
}

// WithToolLogger sets the logger.
func WithToolLogger(logger *slog.Logger) ToolClientOption {
	return func(t *ToolClient) { t.logger = logger }
}

// ToolClient exposes the Airbnb search and details operations on top of a Client.
type ToolClient struct {
	conn    *Client
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewToolClient creates a ToolClient that owns conn.
func NewToolClient(conn *Client, opts ...ToolClientOption) *ToolClient {
	t := &ToolClient{
		conn:   conn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect establishes the tool server connection. Failures are logged and
// reported as false; partially opened sessions are closed.
func (t *ToolClient) Connect(ctx context.Context) bool {
	if err := t.conn.Connect(ctx); err != nil {
		t.logger.Error("failed to connect to Airbnb MCP server", "error", err)
		return false
	}
	return true
}

// Connected reports whether the tool server connection is live.
func (t *ToolClient) Connected() bool {
	return t.conn.Connected()
}

// Close tears down the connection. Safe to call when never connected.
func (t *ToolClient) Close() error {
	return t.conn.Close()
}

// Search looks up listings in location and projects the first limit results.
func (t *ToolClient) Search(ctx context.Context, location string, limit int, filters map[string]any) SearchOutcome {
	if !t.conn.Connected() {
		return SearchOutcome{Message: NotConnectedMessage}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := make(map[string]any, len(filters)+1)
	maps.Copy(params, filters)
	params["location"] = location

	t.logger.Info("searching listings", "location", location, "limit", limit, "filters", filters)
	text, failure := t.call(ctx, SearchTool, params, "Error searching for Airbnb listings")
	if failure != "" {
		return SearchOutcome{Message: failure}
	}

	outcome, err := parseSearch(text, location, limit, t.logger)
	if err != nil {
		t.logger.Error("invalid search response", "error", err, "sample", truncate(text, 500))
		return SearchOutcome{Message: err.Error()}
	}
	return outcome
}

// GetDetails fetches a single listing by id.
func (t *ToolClient) GetDetails(ctx context.Context, id string, filters map[string]any) DetailsOutcome {
	if !t.conn.Connected() {
		return DetailsOutcome{Message: NotConnectedMessage}
	}

	params := make(map[string]any, len(filters)+1)
	maps.Copy(params, filters)
	params["id"] = id

	t.logger.Info("fetching listing details", "id", id, "filters", filters)
	text, failure := t.call(ctx, DetailsTool, params, "Error getting Airbnb listing details")
	if failure != "" {
		return DetailsOutcome{Message: failure}
	}

	outcome, err := parseDetails(text)
	if err != nil {
		t.logger.Error("invalid details response", "error", err, "sample", truncate(text, 500))
		return DetailsOutcome{Message: err.Error()}
	}
	return outcome
}

// call invokes a tool and returns the first text payload, or a user-facing
// failure message.
func (t *ToolClient) call(ctx context.Context, tool string, params map[string]any, prefix string) (string, string) {
	start := time.Now()
	result, err := t.conn.CallTool(ctx, tool, params)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrNotConnected):
		t.metrics.RecordToolCall(tool, "not_connected", elapsed)
		return "", NotConnectedMessage
	case errors.Is(err, ErrToolTimeout):
		t.metrics.RecordToolCall(tool, "timeout", elapsed)
		t.logger.Error("tool call timed out", "tool", tool, "elapsed", elapsed)
		return "", fmt.Sprintf("Airbnb tool call timed out after %s", t.conn.timeout)
	case err != nil:
		t.metrics.RecordToolCall(tool, "error", elapsed)
		t.logger.Error("tool call failed", "tool", tool, "error", err)
		return "", fmt.Sprintf("%s: %v", prefix, err)
	}

	text, ok := result.FirstText()
	if !ok {
		t.metrics.RecordToolCall(tool, "invalid", elapsed)
		return "", errNoContent.Error()
	}
	if result.IsError {
		t.metrics.RecordToolCall(tool, "tool_error", elapsed)
		return "", fmt.Sprintf("%s: %s", prefix, text)
	}

	t.metrics.RecordToolCall(tool, "success", elapsed)
	t.logger.Debug("tool call completed", "tool", tool, "elapsed", elapsed, "bytes", len(text))
	return text, ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
