package domain

import (
	"encoding/json"
	"fmt"
)

// Identity is the principal resolved by the auth service's
// token-validation endpoint. It lives on the request context for the
// duration of handling and is never persisted by the gateway.
type Identity struct {
	UserID   string
	Username string
}

// Matches reports whether a client-supplied user id refers to this
// identity. Peers are inconsistent about numeric vs string ids, so the
// comparison is on the string form.
func (id Identity) Matches(userID string) bool {
	return id.UserID != "" && id.UserID == userID
}

// UnmarshalJSON accepts the auth service's user object. The id field
// arrives as a JSON number from the auth service but as a string from
// some OAuth flows; both normalize to the string form.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Username string          `json:"username"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding identity: %w", err)
	}
	id.Username = raw.Username
	if len(raw.ID) == 0 {
		id.UserID = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		id.UserID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return fmt.Errorf("decoding identity id: %w", err)
	}
	id.UserID = n.String()
	return nil
}

// MarshalJSON mirrors UnmarshalJSON so the identity round-trips in
// log payloads and tests.
func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}{ID: id.UserID, Username: id.Username})
}
