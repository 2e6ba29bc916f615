// Package http is the inbound HTTP transport adapter: routing, request
// correlation, Prometheus metrics, and the admin bearer gate in front of
// the Validator and Admin services.
package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// RequestIDKey is the context key holding the per-request correlation id.
var RequestIDKey = requestIDContextKey{}

// RequestIDMiddleware assigns a request id (from X-Request-ID if present,
// otherwise a generated uuid) to every request, for log correlation only.
// It is never used as a key/project identifier; those come from the
// credential codec.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the correlation id stashed by
// RequestIDMiddleware, or "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// AdminGate rejects any request whose Authorization: Bearer header does
// not constant-time-match sharedSecret. It is the single external
// collaborator spec.md's admin gate describes; validate-key and /health
// are never wrapped with it.
func AdminGate(sharedSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, prefix) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing admin credential")
				return
			}
			presented := strings.TrimPrefix(auth, prefix)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(sharedSecret)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin credential")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// written, for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request duration and outcome counts.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.RequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.URL.Path, statusToLabel(wrapped.status)).Inc()
		})
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
