// Package middleware provides HTTP middleware for the vectorizer API.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are polled by load balancers and logged at debug.
var quietPaths = map[string]struct{}{
	"/health": {},
}

// Logging logs one line per request, at warn for 5xx responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				level := slog.LevelInfo
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					level = slog.LevelWarn
				case isQuiet(r.URL.Path):
					level = slog.LevelDebug
				}
				logger.Log(r.Context(), level, "request completed",
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func isQuiet(path string) bool {
	_, ok := quietPaths[path]
	return ok
}
