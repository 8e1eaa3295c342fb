// Package httpmw holds cross-cutting HTTP middleware shared by every route
// group: currently just the per-IP rate limiter guarding the unauthenticated
// auth endpoints.
package httpmw

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lrcom/signal-core/config"
)

// RateLimiter hands out one token-bucket limiter per client IP, lazily
// created on first use and never evicted — acceptable at this scale since
// register/login traffic is orders of magnitude below the process lifetime
// needed for the map to matter.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:   cfg.Burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.buckets[key]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.buckets[key] = l
	}
	return l
}

// Limit wraps next, rejecting with 429 once the caller's IP bucket is dry.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.limiterFor(host).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
