// Package ratelimit is the request-rate guard for the login endpoint: a
// per-IP budget independent of the per-account lockout. The store is
// pluggable so single-process deployments can stay in memory while
// multi-instance ones share state through Redis.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store answers whether a key may proceed at now, and if not, how long to
// wait. Implementations own their window bookkeeping.
type Store interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

type Guard struct {
	store  Store
	logger *zap.Logger
}

func NewGuard(store Store, logger *zap.Logger) *Guard {
	return &Guard{store: store, logger: logger}
}

// Middleware throttles by client IP. A store failure degrades to allowing the
// request: login availability must not hinge on the cache being up, and the
// per-account lockout still holds.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		allowed, retryAfter, err := g.store.Allow(r.Context(), ip, time.Now().UTC())
		if err != nil {
			g.logger.Warn("rate_guard_store_failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many login attempts"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
