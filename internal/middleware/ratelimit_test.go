package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, []string{"10.0.0.9"}, testLogger())
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("192.0.2.1:5000", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, code)
		}
	}
	if code := do("192.0.2.1:5001", ""); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", code)
	}
	if code := do("192.0.2.2:5000", ""); code != http.StatusOK {
		t.Errorf("expected separate bucket per IP, got %d", code)
	}
	for i := 0; i < 5; i++ {
		if code := do("192.0.2.3:5000", "10.0.0.9, 172.16.0.1"); code != http.StatusOK {
			t.Fatalf("expected whitelisted forwarded client to pass, got %d", code)
		}
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, testLogger())
	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.2")

	rl.evict(time.Now().Add(time.Hour))
	if n := rl.Tracked(); n != 0 {
		t.Errorf("expected idle clients evicted, %d left", n)
	}
}
