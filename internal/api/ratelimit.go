// Package api carries the HTTP middleware in front of the node's management
// surface (/api/peers): per-client rate limiting and the security headers /
// CORS / API-key gate.
package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-client-IP token bucket. Buckets idle longer than the
// prune TTL are dropped so the map stays bounded by active clients.
type Limiter struct {
	mu        sync.Mutex
	ratePerS  float64
	burst     float64
	cost      float64
	buckets   map[string]*tokenBucket
	idleTTL   time.Duration
	lastPrune time.Time
}

// NewLimiter builds a limiter refilling ratePerS tokens per second up to
// burst, charging cost tokens per request.
func NewLimiter(ratePerS, burst, cost float64) *Limiter {
	return &Limiter{
		ratePerS:  ratePerS,
		burst:     burst,
		cost:      cost,
		buckets:   make(map[string]*tokenBucket),
		idleTTL:   10 * time.Minute,
		lastPrune: time.Now().UTC(),
	}
}

// Allow reports whether r's client has budget for one request, charging it
// if so.
func (l *Limiter) Allow(r *http.Request) bool {
	// RemoteAddr, not X-Forwarded-For: the management API is expected to be
	// reached directly, and forwarded headers are caller-controlled.
	client := remoteHost(r)
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= 2*time.Minute {
		l.lastPrune = now
		for ip, b := range l.buckets {
			if now.Sub(b.lastRefill) > l.idleTTL {
				delete(l.buckets, ip)
			}
		}
	}

	b, ok := l.buckets[client]
	if !ok {
		b = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[client] = b
	}

	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.ratePerS
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastRefill = now
	}

	if b.tokens < l.cost {
		return false
	}
	b.tokens -= l.cost
	return true
}

// Middleware wraps next, answering 429 with the module's standard
// {"success":false} body once a client exhausts its budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
