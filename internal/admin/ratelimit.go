package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	// staleLimiterTTL is how long a per-IP limiter can be idle before cleanup.
	staleLimiterTTL = 10 * time.Minute

	cleanupInterval = 1 * time.Minute
)

// Tier is a named rate-limit budget.
type Tier struct {
	Name  string
	RPS   float64
	Burst int
}

type tierRule struct {
	prefix string
	tier   Tier
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits each client IP per tier. Account routes fan out
// to the ledger servers, so they get their own stricter tier.
type RateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry // key: "tier|clientIP"
	rules    []tierRule
	fallback Tier
	logger   *slog.Logger
	nowFunc  func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimitMiddleware starts a background sweep of idle limiters; call
// Stop to release it.
func NewRateLimitMiddleware(general, account Tier, logger *slog.Logger) *RateLimitMiddleware {
	if general.Name == "" {
		general.Name = "default"
	}
	if account.Name == "" {
		account.Name = "account"
	}
	rl := &RateLimitMiddleware{
		limiters: make(map[string]*limiterEntry),
		rules:    []tierRule{{prefix: "/api/v1/accounts/", tier: account}},
		fallback: general,
		logger:   logger,
		nowFunc:  time.Now,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop shuts down the cleanup goroutine. Safe to call multiple times.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimitMiddleware) evictStale() {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// LimiterCount returns the number of live limiter entries.
func (rl *RateLimitMiddleware) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		tier := rl.resolveTier(r.URL.Path)

		if !rl.getOrCreateLimiter(tier, clientIP).Allow() {
			metrics.APIRateLimited.WithLabelValues(tier.Name).Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			rl.logger.Warn("api rate limit exceeded",
				"tier", tier.Name,
				"path", r.URL.Path,
				"client_ip", clientIP,
			)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientIP checks X-Forwarded-For (first IP), X-Real-IP, then
// RemoteAddr.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimitMiddleware) resolveTier(path string) Tier {
	for _, rule := range rl.rules {
		if strings.HasPrefix(path, rule.prefix) {
			return rule.tier
		}
	}
	return rl.fallback
}

func (rl *RateLimitMiddleware) getOrCreateLimiter(tier Tier, clientIP string) *rate.Limiter {
	key := tier.Name + "|" + clientIP
	now := rl.nowFunc()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	burst := tier.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(tier.RPS)
	if tier.RPS <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}
