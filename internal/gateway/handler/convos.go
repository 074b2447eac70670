package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/gateway/adapter/downstream"
)

// listConversations forwards the conversation listing with its
// pagination params and relays the peer's page unchanged.
func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, r, domain.Validation("user_id"))
		return
	}
	if err := requireOwnUserID(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	query := url.Values{}
	query.Set("user_id", userID)
	if limit := q.Get("limit"); limit != "" {
		query.Set("limit", limit)
	} else {
		query.Set("limit", "20")
	}
	if cursor := q.Get("cursor"); cursor != "" {
		query.Set("cursor", cursor)
	}
	if refresh := q.Get("refresh"); refresh != "" {
		query.Set("refresh", refresh)
	} else {
		query.Set("refresh", "false")
	}

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodGet, "/api/convos", query, nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

// createConversation validates user_id and content_id, forwards the
// filtered payload, and relays success or the peer's 400. Any other
// downstream outcome, including transport failure, is a plain 500 per
// the route contract.
func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.has("user_id") || !p.has("content_id") {
		writeError(w, r, &domain.ValidationError{Field: "user_id/content_id", Reason: "user_id and content_id are required"})
		return
	}
	if err := requireOwnUserID(r, p.str("user_id")); err != nil {
		writeError(w, r, err)
		return
	}

	body := payload{
		"user_id":    p["user_id"],
		"content_id": p["content_id"],
	}
	if p.has("content_chunk_id") {
		body["content_chunk_id"] = p["content_chunk_id"]
	}

	corrID := gw.CorrelationIDFromContext(r.Context())
	slog.Info("creating conversation",
		"user_id", p.str("user_id"),
		"content_id", p.str("content_id"),
		"correlation_id", corrID,
	)

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodPost, "/api/convos", nil, body, nil)
	if err != nil {
		slog.Error("creating conversation", "correlation_id", corrID, "error", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
			Error:         "conversation_create_failed",
			Message:       "failed to create conversation",
			CorrelationID: corrID,
		})
		return
	}

	switch resp.Status {
	case http.StatusOK, http.StatusCreated, http.StatusBadRequest:
		relay(w, resp)
	default:
		slog.Error("unexpected conversation service status",
			"status", resp.Status, "correlation_id", corrID)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
			Error:         "conversation_create_failed",
			Message:       "failed to create conversation",
			CorrelationID: corrID,
		})
	}
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodGet,
		"/api/convos/"+r.PathValue("id"), nil, nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

// updateConversation forwards a conversation update verbatim; the
// conversation service owns the field contract.
func (h *Handler) updateConversation(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodPut,
		"/api/convos/"+r.PathValue("id"), nil, p, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	slog.Info("deleting conversation",
		"conversation_id", r.PathValue("id"),
		"correlation_id", gw.CorrelationIDFromContext(r.Context()),
	)
	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodDelete,
		"/api/convos/"+r.PathValue("id"), nil, nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

// addReply forwards a reply message onto an existing conversation.
func (h *Handler) addReply(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.has("message") {
		writeError(w, r, domain.Validation("message"))
		return
	}

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodPut,
		"/api/convos/"+r.PathValue("id")+"/reply", nil, payload{"message": p["message"]}, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

// shuffleConversations asks the conversation service to reshuffle a
// user's deck. Volatility defaults to 0.5. A forwarding failure here is
// a 500, not a 503: shuffling is gateway-initiated work, not a relayed
// client operation.
func (h *Handler) shuffleConversations(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.has("user_id") {
		writeError(w, r, domain.Validation("user_id"))
		return
	}
	if err := requireOwnUserID(r, p.str("user_id")); err != nil {
		writeError(w, r, err)
		return
	}

	body := payload{"user_id": p["user_id"]}
	if p.has("volatility") {
		body["volatility"] = p["volatility"]
	} else {
		body["volatility"] = json.RawMessage("0.5")
	}

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodPost, "/api/convos/shuffle", nil, body, nil)
	if err != nil {
		corrID := gw.CorrelationIDFromContext(r.Context())
		slog.Error("requesting conversation shuffle", "correlation_id", corrID, "error", err)
		writeJSON(w, http.StatusInternalServerError, domain.ErrorResponse{
			Error:         "shuffle_failed",
			Message:       "failed to request conversation shuffle",
			CorrelationID: corrID,
		})
		return
	}
	relay(w, resp)
}

// batchConversations kicks off batch conversation creation. A
// downstream 200 is echoed back with the request parameters; other
// downstream statuses propagate with the peer's error body.
func (h *Handler) batchConversations(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.has("user_id") {
		slog.Warn("batch conversation request missing user_id")
		writeError(w, r, domain.Validation("user_id"))
		return
	}
	if err := requireOwnUserID(r, p.str("user_id")); err != nil {
		writeError(w, r, err)
		return
	}

	numConvos := json.RawMessage("10")
	if p.has("num_convos") {
		numConvos = p["num_convos"]
	}

	corrID := gw.CorrelationIDFromContext(r.Context())
	slog.Info("initiating batch conversation creation",
		"user_id", p.str("user_id"),
		"num_convos", string(numConvos),
		"correlation_id", corrID,
	)

	resp, err := h.ds.Forward(r.Context(), downstream.Conversation, http.MethodPost, "/api/convos/batch", nil,
		payload{"user_id": p["user_id"], "num_convos": numConvos}, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if resp.Status == http.StatusOK || resp.Status == http.StatusAccepted {
		writeJSON(w, resp.Status, map[string]any{
			"message":    "Batch conversation creation initiated",
			"user_id":    p["user_id"],
			"num_convos": numConvos,
		})
		return
	}
	relay(w, resp)
}
