package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Config tunes the throttles applied to the verification endpoints.
// Code sends are throttled harder than code checks: sending costs an
// email, checking only costs a comparison.
type Config struct {
	// SendCapacity is the burst of code-send requests allowed per account.
	SendCapacity int
	// SendPerMinute is the sustained code-send rate per account.
	SendPerMinute float64

	// VerifyCapacity is the burst of code-check requests allowed per account.
	VerifyCapacity int
	// VerifyPerMinute is the sustained code-check rate per account.
	VerifyPerMinute float64

	// BucketTTL is how long inactive buckets stay in memory.
	BucketTTL time.Duration
}

// DefaultConfig returns the throttles used when nothing is configured:
// 3 sends per minute and 10 checks per minute per account, with bursts
// of the same size.
func DefaultConfig() *Config {
	return &Config{
		SendCapacity:    3,
		SendPerMinute:   3,
		VerifyCapacity:  10,
		VerifyPerMinute: 10,
		BucketTTL:       1 * time.Hour,
	}
}

// Middleware rate-limits code sends and code checks per account. The key
// is the authenticated subject from the JWT when present, otherwise the
// client IP, so unauthenticated probing is throttled too.
type Middleware struct {
	config        *Config
	sendLimiter   *KeyedLimiter
	verifyLimiter *KeyedLimiter
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}
	return &Middleware{
		config:        config,
		sendLimiter:   NewKeyedLimiter(config.SendCapacity, config.SendPerMinute/60.0, config.BucketTTL),
		verifyLimiter: NewKeyedLimiter(config.VerifyCapacity, config.VerifyPerMinute/60.0, config.BucketTTL),
	}
}

// LimitSend throttles code-send endpoints
func (m *Middleware) LimitSend(next http.Handler) http.Handler {
	return m.limit(m.sendLimiter, "send", next)
}

// LimitVerify throttles code-check endpoints
func (m *Middleware) LimitVerify(next http.Handler) http.Handler {
	return m.limit(m.verifyLimiter, "verify", next)
}

func (m *Middleware) limit(limiter *KeyedLimiter, kind string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := limitKey(r)
		if !limiter.Allow(key) {
			slog.Warn("Rate limit exceeded",
				"kind", kind,
				"key", key,
				"path", r.URL.Path,
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later.","type":%q}`, kind)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Reset clears the throttles for a key. Used by tests and after a
// successful verification.
func (m *Middleware) Reset(key string) {
	m.sendLimiter.Reset(key)
	m.verifyLimiter.Reset(key)
}

// limitKey picks the bucket key for a request: JWT subject when the
// request is authenticated, client IP otherwise.
func limitKey(r *http.Request) string {
	if _, claims, err := jwtauth.FromContext(r.Context()); err == nil && claims != nil {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return "account:" + sub
		}
	}
	return "ip:" + clientIP(r)
}

// clientIP extracts the client IP address from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is "IP:port"
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
