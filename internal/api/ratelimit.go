package api

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// staleLimiterTTL is how long a per-IP limiter can be idle before cleanup.
	staleLimiterTTL = 10 * time.Minute

	clientRPS   = rate.Limit(20)
	clientBurst = 40
)

// limiterEntry wraps a rate.Limiter with a last-accessed timestamp for
// TTL-based eviction.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware provides per-IP rate limiting for the read API.
type RateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	logger   *slog.Logger
	nowFunc  func() time.Time // injectable clock for testing
}

func NewRateLimitMiddleware(logger *slog.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitMiddleware{
		limiters: make(map[string]*limiterEntry),
		logger:   logger.With("component", "ratelimit"),
		nowFunc:  time.Now,
	}
}

func (m *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) allow(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	entry, ok := m.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(clientRPS, clientBurst)}
		m.limiters[ip] = entry
	}
	entry.lastSeen = now

	// Opportunistic sweep keeps the map bounded without a background goroutine.
	for key, e := range m.limiters {
		if now.Sub(e.lastSeen) > staleLimiterTTL {
			delete(m.limiters, key)
		}
	}

	return entry.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
