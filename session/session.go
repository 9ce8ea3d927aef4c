// Package session defines the authenticated session record and the reactive
// state container that mirrors it into persistent local storage.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StorageKey is the fixed key under which the serialized session is kept in
// the local store.
const StorageKey = "session"

var (
	// ErrMalformed indicates a serialized session that does not decode into a
	// structurally valid record.
	ErrMalformed = errors.New("malformed session")
)

// User identifies the authenticated principal embedded in a session.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email,omitempty"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

// Session is the serialized proof of authentication issued by the backend:
// identity plus token material. The backend remains the source of truth; the
// local copy only bridges process restarts.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Parse decodes and structurally validates a serialized session. A session
// must carry an access token, a refresh token, and a user id.
func Parse(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	if s.AccessToken == "" || s.RefreshToken == "" || s.User.ID == "" {
		return nil, ErrMalformed
	}
	return &s, nil
}

// Encode serializes the session for storage.
func (s *Session) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Expiry returns the session's absolute expiry time. When the expires_at
// field is absent it falls back to the access token's exp claim; the token is
// parsed unverified since the backend is authoritative and the client only
// needs the timestamp. Returns the zero time when no expiry is known.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}

// Expired reports whether the session's expiry has passed at the given time.
// A session with no known expiry is never considered expired locally.
func (s *Session) Expired(now time.Time) bool {
	exp := s.Expiry()
	return !exp.IsZero() && now.After(exp)
}
