package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Defaults for failed-attempt blocking.
const (
	DefaultMaxFailures = 10
	DefaultFailWindow  = time.Minute
	DefaultBlockFor    = 5 * time.Minute
)

// Guard validates bearer keys and blocks clients that fail too often.
type Guard struct {
	key         string
	maxFailures int
	blockFor    time.Duration
	logger      *slog.Logger

	failures *cache.Cache
	blocked  *cache.Cache
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithBlocking blocks a client for blockFor after maxFailures failed
// attempts inside window. maxFailures <= 0 disables blocking.
func WithBlocking(maxFailures int, window, blockFor time.Duration) GuardOption {
	return func(g *Guard) {
		g.maxFailures = maxFailures
		g.blockFor = blockFor
		g.failures = cache.New(window, 2*window)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a guard for key. With an empty key the guard lets every
// request through.
func NewGuard(key string, opts ...GuardOption) *Guard {
	g := &Guard{
		key:         key,
		maxFailures: DefaultMaxFailures,
		blockFor:    DefaultBlockFor,
		logger:      slog.Default(),
		failures:    cache.New(DefaultFailWindow, 2*DefaultFailWindow),
		blocked:     cache.New(DefaultBlockFor, 2*DefaultBlockFor),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enabled reports whether a key is configured.
func (g *Guard) Enabled() bool {
	return g != nil && g.key != ""
}

// Wrap returns next guarded by the key.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if _, until, ok := g.blocked.GetWithExpiration(ip); ok {
			retry := int(time.Until(until).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeAuthError(w, http.StatusTooManyRequests, "Too many failed authentication attempts. Try again later.")
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			g.fail(ip)
			writeAuthError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
			return
		}
		if !ValidateKey(token, g.key) {
			g.fail(ip)
			writeAuthError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		g.failures.Delete(ip)
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) fail(ip string) {
	if g.maxFailures <= 0 {
		return
	}
	n := 1
	if err := g.failures.Add(ip, 1, cache.DefaultExpiration); err != nil {
		if n, err = g.failures.IncrementInt(ip, 1); err != nil {
			return
		}
	}
	if n >= g.maxFailures {
		g.logger.Warn("blocking client after failed authentication", "client", ip, "failures", n)
		g.blocked.Set(ip, struct{}{}, g.blockFor)
		g.failures.Delete(ip)
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
