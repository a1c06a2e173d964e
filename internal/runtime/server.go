package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/szaher/airbnb-assistant/internal/agent"
	"github.com/szaher/airbnb-assistant/internal/auth"
	"github.com/szaher/airbnb-assistant/internal/coordinator"
	"github.com/szaher/airbnb-assistant/internal/telemetry"
)

const maxEnvelopeBytes = 1 << 20

// Server accepts envelopes over HTTP and exposes health and metrics.
type Server struct {
	agent     *agent.Agent
	health    func() coordinator.AgentHealth
	metrics   *telemetry.Metrics
	guard     *auth.Guard
	mux       *http.ServeMux
	logger    *slog.Logger
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	closed   bool
	inflight sync.WaitGroup
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics serves m on GET /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithAuth requires a bearer key on the envelope endpoint. Health and
// metrics stay open.
func WithAuth(g *auth.Guard) ServerOption {
	return func(s *Server) { s.guard = g }
}

// NewServer creates the HTTP front of agent a.
func NewServer(a *agent.Agent, health func() coordinator.AgentHealth, opts ...ServerOption) *Server {
	s := &Server{
		agent:     a,
		health:    health,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("POST "+agent.MessagesPath, s.guard.Wrap(http.HandlerFunc(s.handleMessage)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server starting",
		"addr", addr,
		"agent", s.agent.Name(),
		"address", s.agent.Address(),
		"schemas", s.agent.Schemas(),
	)
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for accepted envelopes to
// be handled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for in-flight messages: %w", ctx.Err()))
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h := s.health()
	status := http.StatusOK
	if h.Status != coordinator.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"agent_name": h.AgentName,
		"status":     h.Status,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleMessage accepts an envelope and dispatches it after responding.
// Replies travel back to the sender's address, not on this response.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env agent.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes)).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid envelope")
		return
	}
	if env.Sender == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Envelope sender is required")
		return
	}
	if env.Target != "" && env.Target != s.agent.Address() {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No agent at address %q", env.Target))
		return
	}
	if !s.agent.Handles(env.Schema) {
		writeError(w, http.StatusUnprocessableEntity, "unsupported_schema", fmt.Sprintf("Schema %q is not handled", env.Schema))
		return
	}

	ctx := telemetry.WithCorrelationID(context.WithoutCancel(r.Context()), r.Header.Get("X-Correlation-ID"))
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.agent.Deliver(ctx, env); err != nil {
			s.logger.Warn("message handling failed", "schema", env.Schema, "sender", env.Sender, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":         "accepted",
		"correlation_id": telemetry.CorrelationID(ctx),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
