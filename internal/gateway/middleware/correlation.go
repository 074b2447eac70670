package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"composer/internal/gateway"
)

// CorrelationID assigns a unique correlation id to each request,
// generated once at ingress and threaded through every downstream call
// and log line. An X-Correlation-Id already present on the inbound
// request is preserved so callers can stitch multi-hop traces.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := gateway.ContextWithCorrelationID(r.Context(), id)
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
