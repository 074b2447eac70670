package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/gateway/adapter/downstream"
)

// register forwards a new-user registration to the auth service. On a
// downstream 201 the gateway answers with its own envelope echoing the
// submitted username and email; validation rejections pass through.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, field := range []string{"username", "email", "password"} {
		if !p.has(field) {
			writeError(w, r, domain.Validation(field))
			return
		}
	}

	slog.Info("registering user",
		"username", p.str("username"),
		"correlation_id", gw.CorrelationIDFromContext(r.Context()),
	)

	resp, err := h.ds.Forward(r.Context(), downstream.Auth, http.MethodPost, "/api/register", nil, p, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch resp.Status {
	case http.StatusCreated:
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "User registered successfully",
			"user": map[string]string{
				"username": p.str("username"),
				"email":    p.str("email"),
			},
		})
	case http.StatusInternalServerError:
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
			Error:         "registration_failed",
			Message:       "registration failed",
			CorrelationID: gw.CorrelationIDFromContext(r.Context()),
		})
	default:
		relay(w, resp)
	}
}

// login forwards credentials to the auth service and reshapes a
// successful answer into {message, user:{username,id}, token}.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.has("username") || !p.has("password") {
		writeError(w, r, &domain.ValidationError{Field: "username/password", Reason: "username and password are required"})
		return
	}

	slog.Info("login attempt",
		"username", p.str("username"),
		"correlation_id", gw.CorrelationIDFromContext(r.Context()),
	)

	resp, err := h.ds.Forward(r.Context(), downstream.Auth, http.MethodPost, "/api/login", nil, p, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Status != http.StatusOK {
		relay(w, resp)
		return
	}

	// Keep the peer's own id and token values untouched in the reshaped
	// envelope; peers are inconsistent about numeric vs string ids.
	var body struct {
		User  payload         `json:"user"`
		Token json.RawMessage `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		writeError(w, r, &domain.DownstreamError{Service: string(downstream.Auth), Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user": map[string]any{
			"username": p.str("username"),
			"id":       body.User["id"],
		},
		"token": body.Token,
	})
}

// googleAuth passes the OAuth callback through to the auth service
// untouched, forwarding the client's Authorization header verbatim
// (never re-signed).
func (h *Handler) googleAuth(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, &domain.ValidationError{Field: "body", Reason: "unreadable request body"})
		return
	}

	header := http.Header{}
	if auth := r.Header.Get("Authorization"); auth != "" {
		header.Set("Authorization", auth)
	}

	var body any
	if len(buf) > 0 {
		body = json.RawMessage(buf)
	}
	resp, err := h.ds.Forward(r.Context(), downstream.Auth, http.MethodPost, "/api/auth/google", nil, body, header)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}
