package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const keyPrefixContextKey contextKey = iota

// ContextWithKeyPrefix returns a new context carrying the caller's key prefix.
func ContextWithKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixContextKey, prefix)
}

// KeyPrefixFromContext returns the authenticated key prefix, or "" when the
// request was not authenticated.
func KeyPrefixFromContext(ctx context.Context) string {
	p, _ := ctx.Value(keyPrefixContextKey).(string)
	return p
}

// MetricsRecorder is an optional interface for recording auth outcomes.
type MetricsRecorder interface {
	IncAuthFailure(authType string)
	IncAuthSuccess(authType string)
}

// BearerMiddleware returns middleware that requires a valid bearer key when
// v is enabled. On success the key prefix is injected into the request
// context. m may be nil.
func BearerMiddleware(v *Verifier, m MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				if m != nil {
					m.IncAuthFailure("bearer")
				}
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}
			if !v.Verify(token) {
				if m != nil {
					m.IncAuthFailure("bearer")
				}
				writeUnauthorized(w, "invalid api key")
				return
			}
			if m != nil {
				m.IncAuthSuccess("bearer")
			}

			ctx := ContextWithKeyPrefix(r.Context(), KeyPrefix(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="langfuse-mcp"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
