package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/TrackForge/internal/logger"
)

// serveRequestID runs RequestID with the given incoming header and returns
// the id seen by the handler and the id echoed on the response.
func serveRequestID(t *testing.T, incoming string) (inCtx, echoed string) {
	t.Helper()
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		inCtx = logger.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tasks/t1", http.NoBody)
	if incoming != "" {
		req.Header.Set(headerRequestID, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return inCtx, rec.Header().Get(headerRequestID)
}

func TestRequestIDKeepsCallerID(t *testing.T) {
	inCtx, echoed := serveRequestID(t, "board-ui-42")
	if inCtx != "board-ui-42" || echoed != "board-ui-42" {
		t.Fatalf("expected caller id kept, got ctx=%q header=%q", inCtx, echoed)
	}
}

func TestRequestIDReplacesMissingOrUnsafe(t *testing.T) {
	for _, incoming := range []string{"", "has space", "tab\there", strings.Repeat("a", maxRequestIDLen+1)} {
		inCtx, echoed := serveRequestID(t, incoming)
		if _, err := uuid.Parse(inCtx); err != nil {
			t.Errorf("%q: expected a generated uuid, got %q", incoming, inCtx)
		}
		if echoed != inCtx {
			t.Errorf("%q: response id %q differs from context id %q", incoming, echoed, inCtx)
		}
	}
}

func TestValidRequestIDBoundary(t *testing.T) {
	if !validRequestID(strings.Repeat("a", maxRequestIDLen)) {
		t.Fatal("an id of exactly the maximum length is valid")
	}
	if validRequestID("ü") {
		t.Fatal("non-ASCII ids are rejected")
	}
}
