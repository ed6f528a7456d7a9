package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitConfig bounds per-client request rates on the management API.
type rateLimitConfig struct {
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
	maxIdle         time.Duration
}

func defaultRateLimit() rateLimitConfig {
	return rateLimitConfig{
		rate:            20,
		burst:           40,
		cleanupInterval: 5 * time.Minute,
		maxIdle:         10 * time.Minute,
	}
}

// rateLimiter keeps one token bucket per client IP and evicts buckets idle
// for longer than maxIdle.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	cfg     rateLimitConfig
	done    chan struct{}
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(cfg rateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*clientBucket),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &clientBucket{tokens: rate.NewLimiter(rl.cfg.rate, rl.cfg.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.tokens.Allow()
}

func (rl *rateLimiter) stop() { close(rl.done) }

func (rl *rateLimiter) evictLoop() {
	t := time.NewTicker(rl.cfg.cleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			rl.evictIdle()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.maxIdle)
	evicted := 0
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("rate limiter eviction",
			"evicted", evicted, "remaining", len(rl.buckets))
	}
}

// rateLimit rejects requests over the per-client budget with 429 and a
// Retry-After hint.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			slog.Warn("rate limit exceeded",
				"ip", ip, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
