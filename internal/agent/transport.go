package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/szaher/airbnb-assistant/internal/auth"
)

// ErrUnknownAddress is returned when no route exists for a target address.
var ErrUnknownAddress = errors.New("unknown agent address")

// MessagesPath is the HTTP path that accepts envelopes.
const MessagesPath = "/v1/messages"

// Transport delivers envelopes to their target.
type Transport interface {
	Deliver(ctx context.Context, env Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, env Envelope) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, env Envelope) error { return f(ctx, env) }

// Router resolves target addresses to transports: co-hosted agents first,
// then the endpoint address book, then addresses that are URLs themselves.
type Router struct {
	client  *http.Client
	logger  *slog.Logger
	authKey string

	mu        sync.RWMutex
	local     map[string]Transport
	endpoints map[string]string
	wg        sync.WaitGroup
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithHTTPClient sets the client used for remote delivery.
func WithHTTPClient(c *http.Client) RouterOption {
	return func(r *Router) { r.client = c }
}

// WithAuthKey sends key as a bearer token on remote deliveries.
func WithAuthKey(key string) RouterOption {
	return func(r *Router) { r.authKey = key }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter creates a router with the given address book (address -> base URL).
func NewRouter(endpoints map[string]string, opts ...RouterOption) *Router {
	r := &Router{
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default(),
		local:     make(map[string]Transport),
		endpoints: make(map[string]string, len(endpoints)),
	}
	for addr, url := range endpoints {
		r.endpoints[addr] = url
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register routes address to a co-hosted transport. Deliveries to it run
// asynchronously so the sender never blocks on the receiver's handler.
func (r *Router) Register(address string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[address] = t
}

// Deliver routes env to its target.
func (r *Router) Deliver(ctx context.Context, env Envelope) error {
	r.mu.RLock()
	local, isLocal := r.local[env.Target]
	endpoint, isRemote := r.endpoints[env.Target]
	r.mu.RUnlock()

	switch {
	case isLocal:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := local.Deliver(context.WithoutCancel(ctx), env); err != nil {
				r.logger.Warn("local delivery failed", "target", env.Target, "schema", env.Schema, "error", err)
			}
		}()
		return nil
	case isRemote:
		return r.post(ctx, endpoint, env)
	case strings.HasPrefix(env.Target, "http://") || strings.HasPrefix(env.Target, "https://"):
		return r.post(ctx, env.Target, env)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAddress, env.Target)
	}
}

// Wait blocks until in-flight local deliveries finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) post(ctx context.Context, base string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	url := strings.TrimSuffix(base, "/")
	if !strings.HasSuffix(url, MessagesPath) {
		url += MessagesPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth.SetBearer(req, r.authKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", env.Target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver to %s: unexpected status %d", env.Target, resp.StatusCode)
	}
	return nil
}
