// Package authclient validates bearer tokens against the auth
// service's validate-token endpoint.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"composer/internal/domain"
	"composer/internal/gateway/adapter/downstream"
)

const validatePath = "/api/validate-token"

// Client resolves bearer tokens to identities by calling the auth peer.
type Client struct {
	ds *downstream.Client
}

// New wraps a downstream client for token validation.
func New(ds *downstream.Client) *Client {
	return &Client{ds: ds}
}

// Validate posts the token to the auth service. A non-200 answer means
// the credential is bad (domain.ErrUnauthorized); a transport failure
// surfaces as *domain.DownstreamError so callers can answer 503
// instead of blaming the token.
func (c *Client) Validate(ctx context.Context, token string) (domain.Identity, error) {
	resp, err := c.ds.Forward(ctx, downstream.Auth, http.MethodPost, validatePath,
		nil, map[string]string{"token": token}, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	if resp.Status != http.StatusOK {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	var body struct {
		User domain.Identity `json:"user"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return domain.Identity{}, &domain.DownstreamError{
			Service: string(downstream.Auth),
			Err:     fmt.Errorf("decoding validate-token response: %w", err),
		}
	}
	if body.User.UserID == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return body.User, nil
}
