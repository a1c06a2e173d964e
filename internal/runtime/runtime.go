// Package runtime wires the assistant together and runs its lifecycle:
// tool connection, message routing, the HTTP server and shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/auth"
	"github.com/szaher/airbnb-assistant/internal/config"
	"github.com/szaher/airbnb-assistant/internal/coordinator"
	"github.com/szaher/airbnb-assistant/internal/events"
	"github.com/szaher/airbnb-assistant/internal/extraction"
	"github.com/szaher/airbnb-assistant/internal/llm"
	"github.com/szaher/airbnb-assistant/internal/mcp"
	"github.com/szaher/airbnb-assistant/internal/session"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

// LocalExtractionAddress is the address of the in-process extraction agent.
const LocalExtractionAddress = "local_extraction"

const shutdownTimeout = 10 * time.Second

// Options configures the runtime.
type Options struct {
	Logger *slog.Logger
	// LLMClient overrides the client chosen from the extraction model.
	LLMClient llm.Client
	// MCPOptions are passed to the tool server client.
	MCPOptions []mcp.Option
	// HTTPClient is used for remote agent delivery.
	HTTPClient *http.Client
}

// Runtime manages the full lifecycle of the assistant.
type Runtime struct {
	config      config.Config
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	tools       *mcp.ToolClient
	router      *agent.Router
	assistant   *agent.Agent
	coordinator *coordinator.Coordinator
	server      *Server
}

// New builds the runtime from cfg. Nothing is started until Run.
func New(cfg config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := telemetry.NewMetrics()

	mcpOpts := append([]mcp.Option{
		mcp.WithCallTimeout(cfg.ToolTimeout),
		mcp.WithLogger(logger),
	}, opts.MCPOptions...)
	tools := mcp.NewToolClient(
		mcp.NewClient(cfg.ToolServer(), mcpOpts...),
		mcp.WithMetrics(metrics),
		mcp.WithToolLogger(logger),
	)

	routerOpts := []agent.RouterOption{
		agent.WithRouterLogger(logger),
		agent.WithAuthKey(cfg.APIKey),
	}
	if opts.HTTPClient != nil {
		routerOpts = append(routerOpts, agent.WithHTTPClient(opts.HTTPClient))
	}
	router := agent.NewRouter(cfg.Endpoints, routerOpts...)

	assistant := agent.New(cfg.AgentName, cfg.AgentAddress, router,
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
	)
	router.Register(cfg.AgentAddress, assistant)

	extractionAddress := cfg.ExtractionAddress
	if extractionAddress == "" {
		extractionAddress = LocalExtractionAddress
		client, model := opts.LLMClient, cfg.ExtractionModel
		if client == nil {
			client, model = cfg.LLM().NewClient(cfg.ExtractionModel)
		}
		extractor := agent.New("extraction", extractionAddress, router, agent.WithLogger(logger))
		extraction.NewService(client, model, logger,
			extraction.WithEmitter(events.LogEmitter{Logger: logger}),
		).Register(extractor)
		router.Register(extractionAddress, extractor)
		logger.Info("using in-process extraction agent", "model", model)
	}

	coord, err := coordinator.New(tools, session.NewMemoryStore(), assistant,
		coordinator.Options{
			AgentName:         cfg.AgentName,
			ExtractionAddress: extractionAddress,
			WatchdogDelay:     cfg.WatchdogDelay,
			FollowUpDelay:     cfg.FollowUpDelay,
			FallbackLocation:  cfg.FallbackLocation,
			FallbackLimit:     cfg.FallbackLimit,
			SearchLimit:       cfg.SearchLimit,
		},
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(metrics),
		coordinator.WithEmitter(events.LogEmitter{Logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}
	coord.Register(assistant, agent.NewQuota(cfg.Quota()))

	server := NewServer(assistant, coord.Health,
		WithLogger(logger),
		WithMetrics(metrics),
		WithAuth(auth.NewGuard(cfg.APIKey, auth.WithLogger(logger))),
	)

	return &Runtime{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		tools:       tools,
		router:      router,
		assistant:   assistant,
		coordinator: coord,
		server:      server,
	}, nil
}

// Handler returns the HTTP handler.
func (rt *Runtime) Handler() http.Handler {
	return rt.server.Handler()
}

// Tools returns the tool client.
func (rt *Runtime) Tools() *mcp.ToolClient {
	return rt.tools
}

// Run connects to the tool server, serves HTTP until ctx is cancelled and
// then shuts everything down. A failed tool connection is logged; the
// server still starts and health reports unhealthy.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.logger.Info("connecting to Airbnb MCP server")
	if rt.tools.Connect(ctx) {
		rt.logger.Info("connected to Airbnb MCP server")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rt.server.ListenAndServe(rt.config.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return rt.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the server, drains local deliveries, stops pending
// watchdogs and closes the tool connection.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.logger.Info("shutting down")

	var errs []error
	if err := rt.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	rt.router.Wait()
	rt.coordinator.Close()
	if err := rt.tools.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close tool connection: %w", err))
	}
	return errors.Join(errs...)
}
