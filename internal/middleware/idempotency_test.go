package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TrackForge/internal/middleware"
)

// memCache is an in-memory cache.Cache for testing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func makeTestHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

// withTenant runs the idempotency middleware behind TenantID.
func withTenant(c *memCache, next http.Handler) http.Handler {
	return middleware.TenantID(middleware.Idempotency(c, time.Hour)(next))
}

func post(h http.Handler, tenant, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	req.Header.Set("X-Tenant-ID", tenant)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	handler := withTenant(newMemCache(), makeTestHandler(&counter, http.StatusCreated))

	post(handler, "t1", "")
	post(handler, "t1", "")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
}

func TestIdempotency_SecondRequestReplays(t *testing.T) {
	counter := 0
	c := newMemCache()
	handler := withTenant(c, makeTestHandler(&counter, http.StatusCreated))

	post(handler, "t1", "key-2")
	if !c.has("idem.t1.key-2") {
		t.Fatal("expected tenant-scoped key in cache")
	}
	rec := post(handler, "t1", "key-2")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("expected replay marker header")
	}
	if !strings.Contains(rec.Body.String(), `"call":1`) {
		t.Fatalf("expected replayed body, got %s", rec.Body.String())
	}
}

func TestIdempotency_KeysAreTenantScoped(t *testing.T) {
	counter := 0
	handler := withTenant(newMemCache(), makeTestHandler(&counter, http.StatusCreated))

	post(handler, "tenant-a", "same")
	post(handler, "tenant-b", "same")

	if counter != 2 {
		t.Fatalf("expected 2 calls across tenants, got %d", counter)
	}
}

func TestIdempotency_ServerErrorsNotRemembered(t *testing.T) {
	counter := 0
	c := newMemCache()
	handler := withTenant(c, makeTestHandler(&counter, http.StatusServiceUnavailable))

	post(handler, "t1", "retry-me")
	post(handler, "t1", "retry-me")

	if counter != 2 {
		t.Fatalf("expected 5xx responses to be retried, got %d calls", counter)
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	counter := 0
	handler := withTenant(newMemCache(), makeTestHandler(&counter, http.StatusOK))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.Header.Set("X-Tenant-ID", "t1")
		req.Header.Set("Idempotency-Key", "key-get")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if counter != 2 {
		t.Fatalf("expected handler called twice, got %d", counter)
	}
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	counter := 0
	handler := withTenant(newMemCache(), makeTestHandler(&counter, http.StatusCreated))

	rec := post(handler, "t1", strings.Repeat("k", 256))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIdempotency_KeyReusedForOtherRequest(t *testing.T) {
	counter := 0
	handler := withTenant(newMemCache(), makeTestHandler(&counter, http.StatusCreated))
	post(handler, "t1", "k")

	req := httptest.NewRequest(http.MethodPatch, "/other", http.NoBody)
	req.Header.Set("X-Tenant-ID", "t1")
	req.Header.Set("Idempotency-Key", "k")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if counter != 1 {
		t.Fatalf("handler must not run for a reused key, got %d calls", counter)
	}
}

func TestIdempotency_ReplayRestoresSelectedHeaders(t *testing.T) {
	handler := withTenant(newMemCache(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"1"`)
		w.Header().Set("X-Request-ID", "first")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	post(handler, "t1", "hdr")
	rec := post(handler, "t1", "hdr")

	if got := rec.Header().Get("ETag"); got != `"1"` {
		t.Fatalf("expected ETag replayed, got %q", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "" {
		t.Fatalf("request id of the first call must not be replayed, got %q", got)
	}
}
