package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"composer/internal/domain"
	"composer/internal/gateway/adapter/downstream"
)

// TestSecret signs the HS256 tokens used across tests.
var TestSecret = []byte("composer-test-secret")

// IssueTestToken creates a signed JWT for the given identity.
// A negative ttl produces an already-expired token.
func IssueTestToken(t *testing.T, identity domain.Identity, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      identity.UserID,
		"username": identity.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"iss":      "composer-test",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(TestSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// MockAuthHandler returns an http.Handler that mimics the auth peer's
// validate-token endpoint: tokens signed with TestSecret resolve to
// the identity in their claims, everything else is rejected 401.
func MockAuthHandler() http.Handler {
	mux := http.NewServeMux()
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
			return TestSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		sub, _ := claims["sub"].(string)
		username, _ := claims["username"].(string)
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]string{"id": sub, "username": username},
		})
	})
	return mux
}

// MockPeerHandler returns an http.Handler that echoes request details,
// used to assert the gateway forwards headers and bodies unchanged.
func MockPeerHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":        name,
			"method":         r.Method,
			"path":           r.URL.Path,
			"query":          r.URL.RawQuery,
			"api_key":        r.Header.Get("X-API-Key"),
			"correlation_id": r.Header.Get("X-Correlation-Id"),
		})
	})
}

// NewDownstreamClient builds a downstream client for the three given
// peer URLs with a short timeout suited to tests.
func NewDownstreamClient(t *testing.T, authURL, conversationURL, uploadURL, apiKey string) *downstream.Client {
	t.Helper()
	c, err := downstream.New(authURL, conversationURL, uploadURL, apiKey, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("downstream.New: %v", err)
	}
	return c
}

// StaticValidator implements gateway.TokenValidator from a fixed table
// without any network hop. Calls counts Validate invocations so tests
// can assert the interceptor never double-validates.
type StaticValidator struct {
	Identities map[string]domain.Identity
	Err        error // returned for every call when set
	Calls      atomic.Int64
}

func (v *StaticValidator) Validate(_ context.Context, token string) (domain.Identity, error) {
	v.Calls.Add(1)
	if v.Err != nil {
		return domain.Identity{}, v.Err
	}
	id, ok := v.Identities[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
