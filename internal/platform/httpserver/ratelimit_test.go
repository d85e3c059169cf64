package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fire(h http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	h := NewRateLimiter(1, 4).Middleware(okHandler())

	for i := 0; i < 4; i++ {
		if code := fire(h, "192.168.1.20:5000", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := fire(h, "192.168.1.20:5000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("over-burst request: expected 429, got %d", code)
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	h := NewRateLimiter(1, 1).Middleware(okHandler())

	if code := fire(h, "192.168.1.20:5000", ""); code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", code)
	}
	if code := fire(h, "192.168.1.21:5000", ""); code != http.StatusOK {
		t.Fatalf("second client: expected 200, got %d", code)
	}
	if code := fire(h, "192.168.1.20:5000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("first client again: expected 429, got %d", code)
	}
}

func TestRateLimiter_ForwardedForSharesBucket(t *testing.T) {
	h := NewRateLimiter(1, 1).Middleware(okHandler())

	// Same origin client arriving through two proxy hops.
	if code := fire(h, "10.0.0.1:9999", "203.0.113.7, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first hop: expected 200, got %d", code)
	}
	if code := fire(h, "10.0.0.2:9999", "203.0.113.7, 10.0.0.2"); code != http.StatusTooManyRequests {
		t.Fatalf("second hop: expected 429, got %d", code)
	}
}

func TestRateLimiter_AllowRefillsUpToBurst(t *testing.T) {
	rl := NewRateLimiter(1000, 2)

	if !rl.Allow("surface-a") || !rl.Allow("surface-a") {
		t.Fatal("burst should admit two calls")
	}
	if rl.Allow("surface-a") {
		t.Fatal("third immediate call should be rejected")
	}

	// 1000 tokens/s refills the whole burst well within this.
	time.Sleep(10 * time.Millisecond)
	if !rl.Allow("surface-a") {
		t.Fatal("bucket should have refilled")
	}
}
