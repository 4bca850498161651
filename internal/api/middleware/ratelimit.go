package middleware

import (
	"net/http"
	"time"

	"github.com/pagebell/pagebell/internal/api/response"
	"github.com/pagebell/pagebell/internal/cache"
)

// Ingress rate tiers, requests per minute.
const (
	WebhookRateLimit = 1000 // per source IP
	APIRateLimit     = 500  // per API key
	PublicRateLimit  = 100  // per source IP
)

// RateLimitByIP returns a middleware limiting by source IP. Relies on
// chi's RealIP running first.
func RateLimitByIP(limiter *cache.Limiter, scope string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context(), scope, r.RemoteAddr, limit, time.Minute) {
				response.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByKey returns a middleware limiting by authenticated API
// key. Must run after Auth.
func RateLimitByKey(limiter *cache.Limiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if identity := GetIdentity(r.Context()); identity != nil {
				key = identity.ID
			}
			if !limiter.Allow(r.Context(), "api", key, limit, time.Minute) {
				response.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
