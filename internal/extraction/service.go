package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/events"
	"github.com/szaher/airbnb-assistant/internal/llm"
)

const defaultMaxTokens = 1024

const systemPrompt = `You convert requests into JSON. Reply with a single JSON object and nothing else.
The object must conform to this JSON schema:

%s

If a required value cannot be determined from the request, use the string "%s" for it.`

// Service answers structured-output prompts with an LLM.
type Service struct {
	client    llm.Client
	model     string
	maxTokens int
	logger    *slog.Logger
	emitter   events.Emitter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEmitter reports failed extractions to e.
func WithEmitter(e events.Emitter) ServiceOption {
	return func(s *Service) { s.emitter = e }
}

// NewService creates a service that queries model through client.
func NewService(client llm.Client, model string, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client:    client,
		model:     model,
		maxTokens: defaultMaxTokens,
		logger:    logger,
		emitter:   events.NoopEmitter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract runs the prompt and returns the decoded object.
func (s *Service) Extract(ctx context.Context, p Prompt) (map[string]any, error) {
	schema, err := json.MarshalIndent(p.OutputSchema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode output schema: %w", err)
	}

	temperature := 0.0
	resp, err := s.client.Chat(ctx, llm.ChatRequest{
		Model:       s.model,
		System:      fmt.Sprintf(systemPrompt, schema, UnknownValue),
		Messages:    llm.UserText(p.Prompt),
		MaxTokens:   s.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	s.logger.Debug("extraction completed",
		"model", s.model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	out, err := parseObject(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return out, nil
}

// Register installs the prompt handler on a. The reply goes back to the
// prompt's sender in the same session. Failed extractions get no reply;
// the requester's timeout covers them.
func (s *Service) Register(a *agent.Agent) {
	agent.On(a, KindPrompt, func(ctx context.Context, c *agent.Context, p Prompt) error {
		out, err := s.Extract(ctx, p)
		if err != nil {
			s.emitter.Emit(events.New(events.ExtractionFailed, c.Session).WithData("error", err.Error()))
			return err
		}
		c.Logger.Debug("extracted structured output", "fields", len(out))
		return c.Send(ctx, c.Sender, Response{Output: out})
	})
}
