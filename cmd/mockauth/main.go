// mockauth is a stand-in authentication peer for local development.
// It registers users in memory, issues HS256 JWTs on login, and checks
// them on /api/validate-token — the same surface the gateway's auth
// interceptor and exempt forwarders talk to.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"composer/internal/platform/server"
)

const tokenTTL = 30 * time.Minute

type user struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

type store struct {
	mu     sync.Mutex
	nextID int
	byName map[string]*user
}

func main() {
	addr := envOr("AUTH_ADDR", ":5007")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		slog.Error("generating signing secret", "error", err)
		os.Exit(1)
	}

	st := &store{nextID: 1, byName: make(map[string]*user)}
	// Seed a known account for manual testing
	st.byName["admin"] = &user{ID: st.nextID, Username: "admin", Email: "admin@example.com", Password: "admin"}
	st.nextID++

	slog.Info("mock auth service starting", "addr", addr, "seed_user", "admin:admin")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
			body.Username == "" || body.Email == "" || body.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required fields"})
			return
		}

		st.mu.Lock()
		defer st.mu.Unlock()
		if _, exists := st.byName[body.Username]; exists {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username already exists"})
			return
		}
		u := &user{ID: st.nextID, Username: body.Username, Email: body.Email, Password: body.Password}
		st.nextID++
		st.byName[u.Username] = u

		slog.Info("registered user", "username", u.Username,
			"correlation_id", r.Header.Get("X-Correlation-Id"))
		writeJSON(w, http.StatusCreated, map[string]any{"message": "created", "user": u})
	})

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
			return
		}

		st.mu.Lock()
		u, ok := st.byName[body.Username]
		st.mu.Unlock()
		if !ok || u.Password != body.Password {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}

		token, err := issueToken(secret, u)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "signing token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "ok",
			"user":    u,
			"token":   token,
		})
	})

	mux.HandleFunc("POST /api/validate-token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(body.Token, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		username, _ := claims["username"].(string)
		st.mu.Lock()
		u, ok := st.byName[username]
		st.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown user"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": u})
	})

	mux.HandleFunc("POST /api/auth/google", func(w http.ResponseWriter, r *http.Request) {
		// Echo enough for the gateway's pass-through to be observable.
		writeJSON(w, http.StatusOK, map[string]string{
			"message":        "google auth accepted",
			"authorization":  r.Header.Get("Authorization"),
			"correlation_id": r.Header.Get("X-Correlation-Id"),
		})
	})

	srv := server.New(addr, mux)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func issueToken(secret []byte, u *user) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      u.ID,
		"username": u.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
		"iss":      "mockauth",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
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
