package middleware

import (
	"context"
	"net/http"

	"github.com/Strob0t/TrackForge/internal/logger"
)

// Request headers carrying the tenant and the acting user.
const (
	TenantHeader = "X-Tenant-ID"
	ActorHeader  = "X-User-ID"
)

type (
	tenantCtxKey struct{}
	actorCtxKey  struct{}
)

// TenantID is middleware that requires the X-Tenant-ID header and stores the
// tenant in the request context. Requests without it are rejected with 400;
// there is no default tenant.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(TenantHeader)
		if tid == "" {
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey{}, tid)
		ctx = logger.WithTenantID(ctx, tid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext returns the tenant ID stored in ctx, or "" if absent.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}

// Actor stores the acting user from X-User-ID in the request context.
// Identity is issued upstream; the header is trusted as given.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid := r.Header.Get(ActorHeader); uid != "" {
			r = r.WithContext(context.WithValue(r.Context(), actorCtxKey{}, uid))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireActor rejects mutating requests that carry no actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if ActorFromContext(r.Context()) == "" {
				writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFromContext returns the acting user ID stored in ctx, or "" if absent.
func ActorFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(actorCtxKey{}).(string)
	return uid
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
