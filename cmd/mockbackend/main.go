// mockbackend stands in for the conversation and upload peers during
// local development. It echoes request details on every route so the
// gateway's forwarded headers are observable, and implements just
// enough of the upload surface (202 on accept, a file listing) to
// exercise the upload tracker end to end.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"composer/internal/platform/server"
)

func main() {
	addr := envOr("ADDR", ":5000")
	name := envOr("BACKEND_NAME", "mock-backend")
	baseDelay := envDuration("LATENCY_BASE", 0)
	jitter := envDuration("LATENCY_JITTER", 0)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("mock backend starting", "addr", addr, "name", name,
		"latency_base", baseDelay, "latency_jitter", jitter)

	mux := http.NewServeMux()

	// Upload accept: answer 202 like the real content processor
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad multipart body"})
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file part"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"message":        "processing",
			"file_name":      header.Filename,
			"user_id":        r.FormValue("user_id"),
			"correlation_id": r.Header.Get("X-Correlation-Id"),
		})
	})

	// File listing for a user
	mux.HandleFunc("GET /api/files", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": r.URL.Query().Get("user_id"),
			"files":   []string{"notes.pdf", "draft.txt"},
		})
	})

	// Catch-all: echo request details
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":        name,
			"method":         r.Method,
			"path":           r.URL.Path,
			"query":          r.URL.RawQuery,
			"api_key_set":    r.Header.Get("X-API-Key") != "",
			"correlation_id": r.Header.Get("X-Correlation-Id"),
		})
	})

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": name})
	})

	srv := server.New(addr, mux)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a duration in milliseconds from an env var (e.g. "50" -> 50ms).
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// simulateWork sleeps for base + random(0, jitter) to mimic real backend processing.
func simulateWork(base, jitter time.Duration) {
	if base == 0 && jitter == 0 {
		return
	}
	delay := base
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(jitter)))
	}
	time.Sleep(delay)
}
