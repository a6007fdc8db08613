package mcp

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireKey guards next with a bearer token. key is consulted on every
// request so a reloaded configuration takes effect without a restart; a nil
// key or an empty value lets requests through.
func RequireKey(key func() string, next http.Handler) http.Handler {
	if key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := key()
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="trackforge-mcp"`)
			http.Error(w, "bearer token required", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			http.Error(w, "invalid api key", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads "Authorization: Bearer <token>"; the scheme is
// case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
