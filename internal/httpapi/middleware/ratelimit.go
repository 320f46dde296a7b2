package middleware

import (
	"encoding/json"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit throttles each resolved caller independently, grounded on the
// teacher's pkg/providers/base.ProviderConfig.ClientSideLimiter field-level
// pattern (SPEC_FULL.md's DOMAIN STACK): one *rate.Limiter per owner ID,
// created lazily on first use and reused across requests. requestsPerSecond
// <= 0 disables throttling entirely, returning next unmodified.
//
// Must sit inside BearerAuth in the chain (GetOwnerID needs the owner ID
// BearerAuth stashes in the request context).
func RateLimit(requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}

	limiters := &limiterPool{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		byOwner: make(map[string]*rate.Limiter),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := GetOwnerID(r.Context())
			if !limiters.forOwner(owner).Allow() {
				writeTooManyRequests(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterPool hands out one *rate.Limiter per owner ID, building it on first
// request from that owner.
type limiterPool struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	byOwner map[string]*rate.Limiter
}

func (p *limiterPool) forOwner(owner string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.byOwner[owner]; ok {
		return l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.byOwner[owner] = l
	return l
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    "RATE_LIMITED",
			"message": "too many requests for this API key",
		},
		"request_id": GetRequestID(r.Context()),
	})
}
