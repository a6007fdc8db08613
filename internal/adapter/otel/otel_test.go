package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/TrackForge/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.TaskUpdates.Add(context.Background(), 1)
	m.RecordActivity(context.Background(), "title_changed", "priority_changed")

	var nilMetrics *Metrics
	nilMetrics.RecordActivity(context.Background(), "created")
}

func TestSpans(t *testing.T) {
	ctx, span := StartTaskSpan(context.Background(), "task.update", "tenant-a", "t1")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	span.End()

	_, span = StartUploadSpan(context.Background(), "t1", "tmp-1", 42)
	span.End()
}

func TestHTTPMiddleware(t *testing.T) {
	h := HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}
