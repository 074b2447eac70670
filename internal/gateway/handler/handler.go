// Package handler holds the route forwarders: one handler per public
// endpoint that validates required fields, builds the downstream
// request, and relays the peer's status and body back to the client.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/gateway/adapter/downstream"
	"composer/internal/gateway/uploader"
)

// Handler wires the forwarders to the downstream client and the upload
// tracker.
type Handler struct {
	ds      *downstream.Client
	tracker *uploader.Tracker
}

// New creates the gateway's route handler set.
func New(ds *downstream.Client, tracker *uploader.Tracker) *Handler {
	return &Handler{ds: ds, tracker: tracker}
}

// Routes returns the gateway's public HTTP surface.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Exempt from auth interception
	mux.HandleFunc("POST /api/register", h.register)
	mux.HandleFunc("POST /api/login", h.login)
	mux.HandleFunc("POST /api/auth/google", h.googleAuth)

	// Conversation routes
	mux.HandleFunc("GET /api/convos", h.listConversations)
	mux.HandleFunc("POST /api/convos", h.createConversation)
	mux.HandleFunc("GET /api/convos/{id}", h.getConversation)
	mux.HandleFunc("PUT /api/convos/{id}", h.updateConversation)
	mux.HandleFunc("DELETE /api/convos/{id}", h.deleteConversation)
	mux.HandleFunc("PUT /api/convos/{id}/reply", h.addReply)
	mux.HandleFunc("POST /api/composer/shuffle-convos", h.shuffleConversations)
	mux.HandleFunc("POST /api/composer/batch-convos", h.batchConversations)

	// Upload routes
	mux.HandleFunc("POST /api/upload", h.upload)
	mux.HandleFunc("GET /api/upload_status/{upload_id}", h.uploadStatus)
	mux.HandleFunc("GET /api/files", h.listFiles)

	// Health checks
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)

	return mux
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// relay writes a peer response back to the client byte-for-byte: same
// status, same body. The gateway is a pass-through, not a translator.
func relay(w http.ResponseWriter, resp *downstream.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			slog.Error("relaying response body", "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// writeError is the single mapping from the error taxonomy to HTTP
// responses. Validation and auth failures resolve here and are never
// forwarded downstream; peer transport failures surface as 503 with
// the peer's name and the correlation id, never the API key.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	corrID := gw.CorrelationIDFromContext(r.Context())

	var status int
	var code, msg string
	var ve *domain.ValidationError
	var de *domain.DownstreamError

	switch {
	case errors.As(err, &ve):
		status, code, msg = http.StatusBadRequest, "validation_error", ve.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, "unauthorized", "invalid token"
	case errors.Is(err, domain.ErrForbidden):
		status, code, msg = http.StatusForbidden, "forbidden", "user_id does not match authenticated user"
	case errors.Is(err, domain.ErrNotFound):
		status, code, msg = http.StatusNotFound, "not_found", "resource not found"
	case errors.Is(err, domain.ErrQueueFull):
		status, code, msg = http.StatusServiceUnavailable, "service_unavailable", "upload queue at capacity, retry later"
	case errors.As(err, &de):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
		msg = de.Service + " service unavailable"
	default:
		status, code, msg = http.StatusInternalServerError, "internal_error", "an unexpected error occurred"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "correlation_id", corrID, "error", err)
	}
	writeJSON(w, status, domain.ErrorResponse{
		Error:         code,
		Message:       msg,
		CorrelationID: corrID,
	})
}

// payload is a shallowly-decoded JSON body: field presence checks and
// per-field extraction without disturbing the raw values, so forwarded
// bodies keep the client's own types (numeric ids stay numeric).
type payload map[string]json.RawMessage

// decodePayload reads and shallowly decodes a JSON request body.
// An empty body decodes to an empty payload; malformed JSON is a
// validation failure.
func decodePayload(r *http.Request) (payload, error) {
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &domain.ValidationError{Field: "body", Reason: "unreadable request body"}
	}
	if len(buf) == 0 {
		return payload{}, nil
	}
	var p payload
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, &domain.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return p, nil
}

// has reports whether the field is present and non-null, non-empty.
func (p payload) has(field string) bool {
	raw, ok := p[field]
	if !ok {
		return false
	}
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != `""`
}

// str extracts the field as a string, accepting both JSON strings and
// numbers (peers are inconsistent about id types).
func (p payload) str(field string) string {
	raw, ok := p[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

// requireOwnUserID enforces that a client-supplied user id matches the
// validated identity. Routes outside the auth gate carry no identity
// and pass through unchecked.
func requireOwnUserID(r *http.Request, userID string) error {
	identity, ok := gw.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if !identity.Matches(userID) {
		return domain.ErrForbidden
	}
	return nil
}
