package api

import (
	"log/slog"
	"net/http"
	"time"
)

// authMiddleware enforces the shared x-api-key header (§6 "Authentication").
// Disabled entirely when disable is true, for tests and local runs.
func authMiddleware(apiKey string, disable bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if disable {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("x-api-key") != apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing x-api-key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs method, path, status, and latency for every request.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}
