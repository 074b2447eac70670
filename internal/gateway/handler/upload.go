package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"composer/internal/domain"
	gw "composer/internal/gateway"
	"composer/internal/gateway/adapter/downstream"
)

// multipartMemoryLimit is how much of a parsed multipart form is held
// in memory before spilling to disk.
const multipartMemoryLimit = 8 << 20

// upload accepts a multipart file, hands it to the upload tracker, and
// answers 202 with the fresh upload id. The response does not wait for
// the transfer: clients poll the status endpoint for the outcome.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, r, &domain.ValidationError{Field: "file", Reason: "no file part in the request"})
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		writeError(w, r, domain.Validation("user_id"))
		return
	}
	if err := requireOwnUserID(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, &domain.ValidationError{Field: "file", Reason: "no file part in the request"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, &domain.ValidationError{Field: "file", Reason: "unreadable file part"})
		return
	}

	corrID := gw.CorrelationIDFromContext(r.Context())
	slog.Info("accepting upload",
		"user_id", userID,
		"file_name", header.Filename,
		"file_size", len(content),
		"correlation_id", corrID,
	)

	uploadID, err := h.tracker.Accept(r.Context(), downstream.FilePart{
		FieldName:   "file",
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":   "Upload accepted",
		"upload_id": uploadID,
	})
}

// uploadStatus reads the tracker's own table; an id the gateway never
// issued is a 404, not a silent default.
func (h *Handler) uploadStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.tracker.Status(r.PathValue("upload_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// listFiles forwards the user's file listing to the upload service.
func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
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
	resp, err := h.ds.Forward(r.Context(), downstream.Upload, http.MethodGet, "/api/files", query, nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}
