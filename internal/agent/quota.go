package agent

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// QuotaConfig limits how many messages a sender may submit per window.
type QuotaConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultQuotaConfig allows 30 requests per hour.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		MaxRequests: 30,
		Window:      60 * time.Minute,
	}
}

// Quota enforces a QuotaConfig per key with a token bucket that holds
// MaxRequests tokens and refills one token every Window/MaxRequests.
// A key idle for a whole Window has a full bucket again, so its limiter
// is evicted after that long.
type Quota struct {
	mu       sync.Mutex
	config   QuotaConfig
	limiters *cache.Cache
}

// NewQuota creates a quota. A non-positive MaxRequests or Window disables it.
func NewQuota(config QuotaConfig) *Quota {
	q := &Quota{config: config}
	if config.Window > 0 {
		q.limiters = cache.New(config.Window, config.Window)
	}
	return q
}

// Allow reports whether key may submit another message now.
func (q *Quota) Allow(key string) bool {
	return q.AllowAt(key, time.Now())
}

// AllowAt is Allow evaluated at t.
func (q *Quota) AllowAt(key string, t time.Time) bool {
	if q == nil || q.config.MaxRequests <= 0 || q.config.Window <= 0 {
		return true
	}

	q.mu.Lock()
	var lim *rate.Limiter
	if v, ok := q.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		every := rate.Every(q.config.Window / time.Duration(q.config.MaxRequests))
		lim = rate.NewLimiter(every, q.config.MaxRequests)
	}
	q.limiters.SetDefault(key, lim)
	q.mu.Unlock()

	return lim.AllowN(t, 1)
}
