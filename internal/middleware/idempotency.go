package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/TrackForge/internal/port/cache"
)

const (
	headerIdempotencyKey   = "Idempotency-Key"
	headerIdempotentReplay = "Idempotent-Replay"
	maxIdempotencyKeyLen   = 255
	maxRememberedBody      = 1 << 20
)

// replayedHeaders are the response headers a replay restores. Everything
// else (dates, request ids) belongs to the replaying request.
var replayedHeaders = []string{"Content-Type", "ETag", "Location"}

// rememberedResponse is the first response to a keyed request, bound to the
// method and path it answered.
type rememberedResponse struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body"`
}

// Idempotency replays the first response of a POST, PATCH or DELETE that
// carries an Idempotency-Key, so a retried task creation does not take a
// second sequence number. Keys are scoped by tenant and live for ttl in c.
// 5xx responses are not remembered and a retry runs again. Reusing a key for
// a different method or path is rejected with 422.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}
			ctx := r.Context()
			cacheKey := "idem." + TenantIDFromContext(ctx) + "." + key

			if prev, ok := lookup(r, c, cacheKey); ok {
				if prev.Method != r.Method || prev.Path != r.URL.Path {
					writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was used for a different request")
					return
				}
				for name, v := range prev.Headers {
					w.Header().Set(name, v)
				}
				w.Header().Set(headerIdempotentReplay, "true")
				w.WriteHeader(prev.Status)
				_, _ = w.Write(prev.Body)
				return
			}

			tee := &teeWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(tee, r)
			if tee.status >= http.StatusInternalServerError || tee.overflow {
				return
			}

			resp := rememberedResponse{
				Method: r.Method,
				Path:   r.URL.Path,
				Status: tee.status,
				Body:   tee.body.Bytes(),
			}
			for _, name := range replayedHeaders {
				if v := w.Header().Get(name); v != "" {
					if resp.Headers == nil {
						resp.Headers = make(map[string]string, len(replayedHeaders))
					}
					resp.Headers[name] = v
				}
			}
			data, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := c.Set(ctx, cacheKey, data, ttl); err != nil {
				slog.WarnContext(ctx, "idempotency: response not remembered", "key", key, "error", err)
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// lookup returns the remembered response for cacheKey. Cache failures and
// undecodable entries count as a miss.
func lookup(r *http.Request, c cache.Cache, cacheKey string) (rememberedResponse, bool) {
	var prev rememberedResponse
	data, ok, err := c.Get(r.Context(), cacheKey)
	if err != nil || !ok {
		return prev, false
	}
	if err := json.Unmarshal(data, &prev); err != nil {
		slog.WarnContext(r.Context(), "idempotency: dropping undecodable entry", "key", cacheKey)
		return prev, false
	}
	return prev, true
}

// teeWriter passes the response through while keeping a copy of the status
// and up to maxRememberedBody bytes of body.
type teeWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
	overflow    bool
}

func (t *teeWriter) WriteHeader(code int) {
	if !t.wroteHeader {
		t.status = code
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *teeWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	if !t.overflow {
		if t.body.Len()+len(b) > maxRememberedBody {
			t.overflow = true
			t.body.Reset()
		} else {
			t.body.Write(b)
		}
	}
	return t.ResponseWriter.Write(b)
}
