package httpserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/watchsync/internal/platform/api"
)

// RateLimiter is a per-client token bucket. Surface traffic is bursty
// (a reconnecting player can flush several queued events in one tick),
// so size the burst for that; the refill rate only bounds sustained
// abuse.
type RateLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	clients map[string]*tokenBucket
}

type tokenBucket struct {
	tokens   float64
	refilled time.Time
}

// NewRateLimiter returns a limiter refilling rate tokens per second up
// to burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:    rate,
		burst:   float64(burst),
		clients: make(map[string]*tokenBucket),
	}
}

// Allow consumes one token for id, refilling lazily since the last call.
func (rl *RateLimiter) Allow(id string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[id]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, refilled: now}
		rl.clients[id] = b
	} else {
		b.tokens += now.Sub(b.refilled).Seconds() * rl.rate
		if b.tokens > rl.burst {
			b.tokens = rl.burst
		}
		b.refilled = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware answers 429 for over-limit clients. Clients are keyed by
// IP; behind a proxy the first X-Forwarded-For hop is the client.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			api.RateLimited(w, "RATE_LIMITED", "Too many requests", RequestIDFromContext(r.Context()), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
