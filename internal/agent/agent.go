package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/szaher/airbnb-assistant/internal/session"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

var (
	// ErrNoHandler is returned for envelopes whose schema has no handler.
	ErrNoHandler = errors.New("no handler for schema")
	// ErrRateLimited is returned when a sender exceeded its quota.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrWrongTarget is returned for envelopes addressed to another agent.
	ErrWrongTarget = errors.New("envelope addressed to another agent")
)

// Context is passed to handlers. It identifies the conversation and lets
// the handler send messages within it.
type Context struct {
	Session string
	Sender  string
	Schema  string
	Logger  *slog.Logger

	agent *Agent
}

// Send sends msg to address within the current session.
func (c *Context) Send(ctx context.Context, to string, msg Message) error {
	return c.agent.Send(ctx, to, c.Session, msg)
}

// Address returns the address of the agent handling the message.
func (c *Context) Address() string {
	return c.agent.address
}

// Handler processes a raw envelope payload.
type Handler func(ctx context.Context, c *Context, payload json.RawMessage) error

type route struct {
	handle Handler
	quota  *Quota
}

// RouteOption configures a handler registration.
type RouteOption func(*route)

// WithQuota rate limits the route per sender.
func WithQuota(q *Quota) RouteOption {
	return func(r *route) { r.quota = q }
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMetrics records inbound messages and quota rejections.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// Agent is an addressable message endpoint. It routes inbound envelopes to
// handlers by schema and sends outbound messages through a Transport.
type Agent struct {
	name    string
	address string
	out     Transport
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu     sync.RWMutex
	routes map[string]*route
}

// New creates an agent that sends through out.
func New(name, address string, out Transport, opts ...Option) *Agent {
	a := &Agent{
		name:    name,
		address: address,
		out:     out,
		logger:  slog.Default(),
		routes:  make(map[string]*route),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Address returns the agent address.
func (a *Agent) Address() string { return a.address }

// Handle registers h for schema, replacing any previous handler.
func (a *Agent) Handle(schema string, h Handler, opts ...RouteOption) {
	r := &route{handle: h}
	for _, opt := range opts {
		opt(r)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[schema] = r
}

// On registers a typed handler for schema. The payload is decoded into T
// before fn runs.
func On[T any](a *Agent, schema string, fn func(ctx context.Context, c *Context, msg T) error, opts ...RouteOption) {
	a.Handle(schema, func(ctx context.Context, c *Context, payload json.RawMessage) error {
		var msg T
		if len(payload) > 0 {
			if err := Decode(payload, &msg); err != nil {
				return fmt.Errorf("decode %s: %w", schema, err)
			}
		}
		return fn(ctx, c, msg)
	}, opts...)
}

// Handles reports whether a handler is registered for schema.
func (a *Agent) Handles(schema string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.routes[schema]
	return ok
}

// Schemas returns the registered schema names.
func (a *Agent) Schemas() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.routes))
	for s := range a.routes {
		out = append(out, s)
	}
	return out
}

// Deliver dispatches an inbound envelope to its handler. Handler panics are
// recovered and reported as errors.
func (a *Agent) Deliver(ctx context.Context, env Envelope) (err error) {
	if env.Target != "" && env.Target != a.address {
		return fmt.Errorf("%w: %s", ErrWrongTarget, env.Target)
	}

	a.mu.RLock()
	r, ok := a.routes[env.Schema]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, env.Schema)
	}

	if env.Session == "" {
		env.Session = session.NewID("sess_")
	}
	logger := telemetry.RequestLogger(a.logger, ctx, env.Session, env.Sender).With("schema", env.Schema)
	a.metrics.RecordMessage(env.Schema)

	c := &Context{
		Session: env.Session,
		Sender:  env.Sender,
		Schema:  env.Schema,
		Logger:  logger,
		agent:   a,
	}

	if !r.quota.Allow(env.Sender) {
		a.metrics.RecordRateLimited(env.Schema)
		logger.Warn("sender exceeded quota")
		reply := ErrorMessage{Error: fmt.Sprintf("%s: try again later", ErrRateLimited)}
		if sendErr := c.Send(ctx, env.Sender, reply); sendErr != nil {
			logger.Error("failed to send rate limit error", "error", sendErr)
		}
		return ErrRateLimited
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panic", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler %s panicked: %v", env.Schema, p)
		}
	}()

	logger.Debug("dispatching message")
	if err := r.handle(ctx, c, env.Payload); err != nil {
		logger.Error("handler failed", "error", err)
		return err
	}
	return nil
}

// Send seals msg and hands it to the outbound transport.
func (a *Agent) Send(ctx context.Context, to, sessionID string, msg Message) error {
	env, err := Seal(a.address, to, sessionID, msg)
	if err != nil {
		return err
	}
	if err := a.out.Deliver(ctx, env); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), to, err)
	}
	return nil
}
