package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/platform/telemetry"
)

// Auth returns a middleware that gates every non-exempt route behind a
// call to the auth service's token-validation endpoint. Paths in
// exemptPaths and OPTIONS preflights pass through with no token check.
// A rejected token yields 401; a validation call that fails at the
// transport level yields 503, because an unreachable checker says
// nothing about the credential. Validation runs exactly once per
// request, before any route forwarder.
// The metrics parameter is optional; pass nil to skip metric recording.
func Auth(validator gw.TokenValidator, exemptPaths []string, m *telemetry.GatewayMetrics) Middleware {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractBearerToken(r)
			if !ok {
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				writeAuthError(w, r, http.StatusUnauthorized, "unauthorized",
					"missing or malformed authorization header")
				return
			}

			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				var de *domain.DownstreamError
				if errors.As(err, &de) {
					slog.Error("token validation unreachable",
						"service", de.Service,
						"correlation_id", gw.CorrelationIDFromContext(r.Context()),
						"error", err,
					)
					if m != nil {
						m.RecordAuthValidation(r.Context(), "unavailable")
					}
					writeAuthError(w, r, http.StatusServiceUnavailable, "service_unavailable",
						"authentication service unavailable")
					return
				}
				slog.Debug("auth validation failed", "error", err)
				if m != nil {
					m.RecordAuthValidation(r.Context(), "failure")
				}
				writeAuthError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			if m != nil {
				m.RecordAuthValidation(r.Context(), "success")
			}
			ctx := gw.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(domain.ErrorResponse{
		Error:         errCode,
		Message:       msg,
		CorrelationID: gw.CorrelationIDFromContext(r.Context()),
	}); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}
