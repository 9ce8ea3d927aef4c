package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	data := []byte(`{
		"access_token": "at",
		"token_type": "bearer",
		"expires_at": 1900000000,
		"refresh_token": "rt",
		"user": {"id": "user-1", "email": "a@b.com"}
	}`)
	s, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
	assert.Equal(t, "rt", s.RefreshToken)
	assert.Equal(t, "user-1", s.User.ID)
	assert.Equal(t, "a@b.com", s.User.Email)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing access":   `{"refresh_token":"rt","user":{"id":"u"}}`,
		"missing refresh":  `{"access_token":"at","user":{"id":"u"}}`,
		"missing user id":  `{"access_token":"at","refresh_token":"rt","user":{}}`,
		"wrong value type": `{"access_token":42,"refresh_token":"rt","user":{"id":"u"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	orig := &Session{
		AccessToken:  "at",
		TokenType:    "bearer",
		ExpiresAt:    1900000000,
		RefreshToken: "rt",
		User:         User{ID: "user-1", Email: "a@b.com"},
	}
	data, err := orig.Encode()
	require.NoError(t, err)
	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestExpiryFromField(t *testing.T) {
	s := &Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1700000000, User: User{ID: "u"}}
	assert.Equal(t, time.Unix(1700000000, 0), s.Expiry())
	assert.True(t, s.Expired(time.Unix(1700000001, 0)))
	assert.False(t, s.Expired(time.Unix(1699999999, 0)))
}

func TestExpiryFromJWTClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	s := &Session{AccessToken: signed, RefreshToken: "rt", User: User{ID: "user-1"}}
	assert.Equal(t, exp, s.Expiry())
	assert.False(t, s.Expired(time.Now()))
	assert.True(t, s.Expired(exp.Add(time.Second)))
}

func TestExpiryUnknown(t *testing.T) {
	s := &Session{AccessToken: "opaque", RefreshToken: "rt", User: User{ID: "u"}}
	assert.True(t, s.Expiry().IsZero())
	// No known expiry: never locally expired.
	assert.False(t, s.Expired(time.Now().Add(100*365*24*time.Hour)))
}
