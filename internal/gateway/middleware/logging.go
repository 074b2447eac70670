package middleware

import (
	"log/slog"
	"net/http"
	"time"

	gw "composer/internal/gateway"
)

// Logging returns a middleware that logs each request using slog.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &gw.StatusWriter{ResponseWriter: w, Code: http.StatusOK}

			next.ServeHTTP(sw, r)

			corrID := gw.CorrelationIDFromContext(r.Context())
			identity, _ := gw.IdentityFromContext(r.Context())

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.Code,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"correlation_id", corrID,
				"user_id", identity.UserID,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
