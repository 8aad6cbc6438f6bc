package main

import (
	"net/http"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens         int
	capacity       int
	refillRate     int
	lastRefillTime time.Time
	mu             chan struct{} // Simple mutex using a channel
}

// NewRateLimiter creates a new rate limiter with the given capacity and refill rate
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:         burst,
		capacity:       burst,
		refillRate:     requestsPerSecond,
		lastRefillTime: time.Now(),
		mu:             make(chan struct{}, 1),
	}
}

// Allow reports whether a request may proceed, consuming one token if so.
func (l *RateLimiter) Allow() bool {
	l.mu <- struct{}{}
	defer func() { <-l.mu }()

	now := time.Now()
	newTokens := int(float64(l.refillRate) * now.Sub(l.lastRefillTime).Seconds())
	if newTokens > 0 {
		l.tokens = min(l.capacity, l.tokens+newTokens)
		// Advance only when whole tokens were credited.
		l.lastRefillTime = now
	}

	if l.tokens > 0 {
		l.tokens--
		return true
	}

	return false
}

// rateLimited wraps next with limiter. A nil limiter disables limiting.
func rateLimited(limiter *RateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			requestLogger(r).Warn("request.rate_limited", "path", r.URL.Path)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newRouteLimiters builds one bucket per route, or nil when limiting is off.
func newRouteLimiters(config Config, routes ...string) map[string]*RateLimiter {
	if config.RateLimit.RequestsPerSecond == 0 && config.RateLimit.Burst == 0 {
		return nil
	}
	limiters := make(map[string]*RateLimiter, len(routes))
	for _, route := range routes {
		limiters[route] = NewRateLimiter(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}
	return limiters
}
