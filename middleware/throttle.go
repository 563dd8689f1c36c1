package middleware

import (
	"errors"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ErrThrottled is passed to the DenyFunc when a client exceeds its budget.
var ErrThrottled = errors.New("too many requests")

// ThrottleConfig sizes the per-IP token buckets.
type ThrottleConfig struct {
	RequestsPerSecond float64
	Burst             int
	// MaxClients bounds memory; the least recently seen client is evicted.
	MaxClients int
	TrustProxy bool
}

// Throttle holds one token bucket per client IP.
type Throttle struct {
	cfg      ThrottleConfig
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewThrottle(cfg ThrottleConfig) (*Throttle, error) {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	cache, err := lru.New[string, *rate.Limiter](cfg.MaxClients)
	if err != nil {
		return nil, err
	}
	return &Throttle{cfg: cfg, limiters: cache}, nil
}

func (t *Throttle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.limiters.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
	t.limiters.Add(ip, l)
	return l
}

// Allow spends one token of ip's bucket.
func (t *Throttle) Allow(ip string) bool {
	return t.limiter(ip).Allow()
}

// Middleware answers 429 once the client's bucket is empty.
func (t *Throttle) Middleware(deny DenyFunc) func(http.Handler) http.Handler {
	deny = orPlain(deny)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.Allow(ClientIP(r, t.cfg.TrustProxy)) {
				w.Header().Set("Retry-After", "1")
				deny(w, r, http.StatusTooManyRequests, ErrThrottled)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
