package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limited(rl *RateLimiter) http.Handler {
	return TenantID(rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
}

func hit(h http.Handler, tenant string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Tenant-ID", tenant)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	h := limited(NewRateLimiter(10, 10))
	for i := range 10 {
		if rec := hit(h, "t1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	h := limited(NewRateLimiter(10, 5))
	for range 5 {
		hit(h, "t1")
	}

	rec := hit(h, "t1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiterPerTenant(t *testing.T) {
	h := limited(NewRateLimiter(10, 2))
	hit(h, "tenant-a")
	hit(h, "tenant-a")

	if rec := hit(h, "tenant-a"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("tenant-a: expected 429, got %d", rec.Code)
	}
	if rec := hit(h, "tenant-b"); rec.Code != http.StatusOK {
		t.Errorf("tenant-b: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefillAndCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if _, _, ok := rl.take("t1"); !ok {
		t.Fatal("first request should pass")
	}
	if _, wait, ok := rl.take("t1"); ok || wait <= 0 {
		t.Fatalf("expected rejection with positive wait, got ok=%v wait=%v", ok, wait)
	}

	now = now.Add(time.Second)
	if _, _, ok := rl.take("t1"); !ok {
		t.Fatal("expected refill after one second")
	}

	now = now.Add(time.Hour)
	rl.cleanup(time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected idle bucket removed, got %d", rl.Len())
	}
}
