// Package coordinator turns chat messages into Airbnb tool calls. It sends
// each text to an extraction agent, waits for the structured reply, and
// falls back to a direct search when no reply arrives in time.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/chat"
	"github.com/szaher/airbnb-assistant/internal/events"
	"github.com/szaher/airbnb-assistant/internal/extraction"
	"github.com/szaher/airbnb-assistant/internal/mcp"
	"github.com/szaher/airbnb-assistant/internal/session"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

const seenTTL = 10 * time.Minute

// Tools is the subset of the tool client the coordinator calls.
type Tools interface {
	Search(ctx context.Context, location string, limit int, filters map[string]any) mcp.SearchOutcome
	GetDetails(ctx context.Context, id string, filters map[string]any) mcp.DetailsOutcome
	Connected() bool
}

// Outbox sends a message to an address within a session. *agent.Agent
// implements it.
type Outbox interface {
	Send(ctx context.Context, to, sessionID string, msg agent.Message) error
}

// Options holds the coordinator's tunables.
type Options struct {
	AgentName         string
	ExtractionAddress string
	WatchdogDelay     time.Duration
	FollowUpDelay     time.Duration
	FallbackLocation  string
	FallbackLimit     int
	SearchLimit       int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		AgentName:        "airbnb_assistant",
		WatchdogDelay:    15 * time.Second,
		FollowUpDelay:    time.Second,
		FallbackLocation: "San Francisco",
		FallbackLimit:    2,
		SearchLimit:      mcp.DefaultSearchLimit,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics records fallbacks and dropped replies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(e events.Emitter) Option {
	return func(c *Coordinator) { c.emitter = e }
}

// Coordinator correlates chat messages with extraction replies. At most
// one final answer is sent per request: the reply handler and the watchdog
// both claim the pending request, and only the winner answers.
type Coordinator struct {
	tools   Tools
	store   session.Store
	out     Outbox
	opts    Options
	schema  map[string]any
	seen    *cache.Cache
	logger  *slog.Logger
	metrics *telemetry.Metrics
	emitter events.Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator. Close must be called to stop pending
// watchdogs.
func New(tools Tools, store session.Store, out Outbox, opts Options, options ...Option) (*Coordinator, error) {
	schema, err := extraction.SchemaFor[AirbnbRequest]()
	if err != nil {
		return nil, fmt.Errorf("request schema: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		tools:   tools,
		store:   store,
		out:     out,
		opts:    opts,
		schema:  schema,
		seen:    cache.New(seenTTL, 2*seenTTL),
		logger:  slog.Default(),
		emitter: events.NoopEmitter{},
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Register installs the coordinator's handlers on a. Direct requests are
// limited by quota.
func (c *Coordinator) Register(a *agent.Agent, quota *agent.Quota) {
	agent.On(a, chat.KindMessage, func(ctx context.Context, ac *agent.Context, m chat.Message) error {
		return c.HandleChat(ctx, ac.Session, ac.Sender, m)
	})
	agent.On(a, chat.KindAcknowledgement, func(ctx context.Context, ac *agent.Context, m chat.Acknowledgement) error {
		c.HandleAck(ctx, ac.Session, ac.Sender, m)
		return nil
	})
	agent.On(a, extraction.KindResponse, func(ctx context.Context, ac *agent.Context, m extraction.Response) error {
		return c.HandleStructuredOutput(ctx, ac.Session, ac.Sender, m)
	})
	agent.On(a, KindAirbnbRequest, func(ctx context.Context, ac *agent.Context, m AirbnbRequest) error {
		return c.HandleAirbnbRequest(ctx, ac.Session, ac.Sender, m)
	}, agent.WithQuota(quota))
	agent.On(a, KindHealthCheck, func(ctx context.Context, ac *agent.Context, _ HealthCheck) error {
		return c.out.Send(ctx, ac.Sender, ac.Session, c.Health())
	})
}

// Close stops pending watchdogs and waits for running ones to finish.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Health reports whether the tool connection is live.
func (c *Coordinator) Health() AgentHealth {
	status := Unhealthy
	if c.tools != nil && c.tools.Connected() {
		status = Healthy
	}
	return AgentHealth{AgentName: c.opts.AgentName, Status: status}
}

// HandleChat acknowledges a chat message and dispatches each text part for
// extraction. A message id seen recently is acknowledged again but not
// processed twice.
func (c *Coordinator) HandleChat(ctx context.Context, sessionID, sender string, msg chat.Message) error {
	logger := telemetry.RequestLogger(c.logger, ctx, sessionID, sender)

	c.store.SetSender(sessionID, sender)
	if err := c.out.Send(ctx, sender, sessionID, chat.NewAcknowledgement(msg.MsgID)); err != nil {
		logger.Error("failed to acknowledge message", "msg_id", msg.MsgID, "error", err)
	}

	if msg.MsgID != "" {
		if err := c.seen.Add(msg.MsgID, struct{}{}, cache.DefaultExpiration); err != nil {
			logger.Info("duplicate message ignored", "msg_id", msg.MsgID)
			return nil
		}
	}

	for _, part := range msg.Content {
		switch p := part.(type) {
		case chat.StartSessionContent:
			logger.Info("session started")
		case chat.EndSessionContent:
			logger.Info("session ended")
		case chat.TextContent:
			logger.Info("processing text message", "text", p.Text)
			c.dispatch(ctx, logger, sessionID, sender, p.Text)
		default:
			logger.Warn("unexpected content type", "type", part.ContentType())
		}
	}
	return nil
}

// dispatch sends text for extraction and arms the watchdog. If the prompt
// cannot be sent the query fallback answers right away.
func (c *Coordinator) dispatch(ctx context.Context, logger *slog.Logger, sessionID, sender, text string) {
	gen := c.store.Begin(sessionID)
	c.emitter.Emit(events.New(events.RequestStarted, sessionID).WithData("generation", gen))

	prompt := extraction.Prompt{Prompt: buildPrompt(text), OutputSchema: c.schema}
	if err := c.out.Send(ctx, c.opts.ExtractionAddress, sessionID, prompt); err != nil {
		logger.Error("failed to send extraction prompt", "address", c.opts.ExtractionAddress, "error", err)
		if !c.store.Claim(sessionID, gen, session.FallbackSent) {
			return
		}
		c.metrics.RecordFallback("dispatch")
		c.emitter.Emit(events.New(events.RequestFallback, sessionID).WithData("reason", "dispatch"))
		c.queryFallback(ctx, logger, sessionID, sender, text)
		return
	}

	logger.Debug("extraction prompt sent", "address", c.opts.ExtractionAddress, "generation", gen)
	c.wg.Add(1)
	go c.watch(sessionID, gen)
}

func (c *Coordinator) watch(sessionID string, gen uint64) {
	defer c.wg.Done()

	timer := time.NewTimer(c.opts.WatchdogDelay)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return
	case <-timer.C:
	}
	c.expire(c.ctx, sessionID, gen)
}

// expire runs the watchdog fallback for generation gen unless a reply
// already claimed it.
func (c *Coordinator) expire(ctx context.Context, sessionID string, gen uint64) {
	pending := c.store.Pending(sessionID)
	if !c.store.Claim(sessionID, gen, session.FallbackSent) {
		return
	}
	sender, ok := c.store.Sender(sessionID)
	if !ok {
		return
	}
	logger := telemetry.RequestLogger(c.logger, ctx, sessionID, sender)
	logger.Warn("no extraction reply in time",
		"elapsed", time.Since(pending.RequestedAt).Round(10*time.Millisecond).String(),
		"address", c.opts.ExtractionAddress,
	)
	c.metrics.RecordFallback("watchdog")
	c.emitter.Emit(events.New(events.RequestFallback, sessionID).WithData("reason", "watchdog"))

	c.reply(ctx, logger, sessionID, sender, msgWatchdogNotice)

	location, limit := c.opts.FallbackLocation, c.opts.FallbackLimit
	logger.Info("running fallback search", "location", location, "limit", limit)
	outcome := c.tools.Search(ctx, location, limit, nil)
	if !outcome.Success {
		c.reply(ctx, logger, sessionID, sender, fmt.Sprintf(msgWatchdogFailed, outcome.Message))
		return
	}
	c.reply(ctx, logger, sessionID, sender, formatBrief(limit, location, outcome.Listings))
	if pause(ctx, c.opts.FollowUpDelay) {
		c.reply(ctx, logger, sessionID, sender, msgWatchdogThanks)
	}
}

// queryFallback searches with a location and count guessed from the raw
// text.
func (c *Coordinator) queryFallback(ctx context.Context, logger *slog.Logger, sessionID, sender, text string) {
	location, limit := parseFallbackQuery(text, c.opts.FallbackLocation)
	logger.Info("running query fallback search", "location", location, "limit", limit)

	outcome := c.tools.Search(ctx, location, limit, nil)
	if !outcome.Success {
		c.reply(ctx, logger, sessionID, sender, fmt.Sprintf(msgSearchFailed, outcome.Message))
		return
	}
	c.reply(ctx, logger, sessionID, sender, formatBrief(limit, location, outcome.Listings))
	if pause(ctx, c.opts.FollowUpDelay) {
		c.reply(ctx, logger, sessionID, sender, msgFallbackFollowUp)
	}
}

// HandleAck logs an acknowledgement.
func (c *Coordinator) HandleAck(ctx context.Context, sessionID, sender string, ack chat.Acknowledgement) {
	telemetry.RequestLogger(c.logger, ctx, sessionID, sender).
		Info("got acknowledgement", "msg_id", ack.AcknowledgedMsgID)
}

// reply sends text to the user as a session-ending chat message. Send
// failures are logged; there is no one left to tell.
func (c *Coordinator) reply(ctx context.Context, logger *slog.Logger, sessionID, to, text string) {
	if err := c.out.Send(ctx, to, sessionID, chat.NewText(text, true)); err != nil {
		logger.Error("failed to send reply", "error", err)
	}
}

// pause waits for d and reports whether ctx is still live.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
