//go:build load

// Load tests are excluded from regular runs.
// Run with: go test -tags load -count=1 -timeout 60s ./internal/middleware/
package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
)

// TestRateLimitSustainedLoad fires 1000 requests of one tenant near-instantly
// against a rate=10 burst=10 limiter; most must be rejected.
func TestRateLimitSustainedLoad(t *testing.T) {
	h := limited(NewRateLimiter(10, 10))

	const goroutines = 10
	const reqsPerGoroutine = 100

	var ok, rejected atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range reqsPerGoroutine {
				switch hit(h, "acme").Code {
				case http.StatusOK:
					ok.Add(1)
				case http.StatusTooManyRequests:
					rejected.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	total := ok.Load() + rejected.Load()
	pct := float64(rejected.Load()) / float64(total) * 100
	t.Logf("total=%d ok=%d rejected=%d (%.1f%%)", total, ok.Load(), rejected.Load(), pct)
	if pct < 80 {
		t.Errorf("expected >80%% rejected under sustained load, got %.1f%%", pct)
	}
}

// TestRateLimitBurstAbsorption sends burst-size concurrent requests which
// must all pass; the next one is rejected.
func TestRateLimitBurstAbsorption(t *testing.T) {
	const burst = 50
	h := limited(NewRateLimiter(0.001, burst))

	var ok atomic.Int64
	var wg sync.WaitGroup
	wg.Add(burst)
	for range burst {
		go func() {
			defer wg.Done()
			if hit(h, "acme").Code == http.StatusOK {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != burst {
		t.Errorf("expected all %d burst requests to pass, got %d", burst, ok.Load())
	}
	if rec := hit(h, "acme"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("burst+1 request: expected 429, got %d", rec.Code)
	}
}

// TestRateLimitConcurrentTenants gives 100 tenants one request each.
func TestRateLimitConcurrentTenants(t *testing.T) {
	const tenants = 100
	rl := NewRateLimiter(1, 1)
	h := limited(rl)

	var ok atomic.Int64
	var wg sync.WaitGroup
	wg.Add(tenants)
	for i := range tenants {
		go func(idx int) {
			defer wg.Done()
			if hit(h, fmt.Sprintf("tenant-%d", idx)).Code == http.StatusOK {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != tenants {
		t.Errorf("expected all %d first requests to pass, got %d", tenants, ok.Load())
	}
	if rl.Len() != tenants {
		t.Errorf("expected %d buckets, got %d", tenants, rl.Len())
	}
}
