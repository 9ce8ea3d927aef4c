package gotrue

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmehta/authkit/backend"
	"github.com/slmehta/authkit/backend/backendtest"
	"github.com/slmehta/authkit/session"
)

func newTestClient(t *testing.T) (*backendtest.Server, *Client) {
	t.Helper()
	bt := backendtest.New()
	ts := httptest.NewServer(bt)
	t.Cleanup(ts.Close)
	c := New(ts.URL+"/auth/v1", "anon-key",
		WithHTTPClient(ts.Client()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(c.Close)
	return bt, c
}

func nextEvent(t *testing.T, c *Client) backend.Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
		return backend.Event{}
	}
}

// requireNoEvent asserts the stream is empty. Events are emitted before calls
// return, so no settling wait is needed.
func requireNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestSignInWithPassword(t *testing.T) {
	bt, c := newTestClient(t)
	uid := bt.Seed("a@b.com", "secret", true)

	require.NoError(t, c.SignInWithPassword(context.Background(), "a@b.com", "secret"))

	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, uid, ev.Session.User.ID)
	assert.Equal(t, "a@b.com", ev.Session.User.Email)
	assert.NotEmpty(t, ev.Session.AccessToken)
	assert.NotEmpty(t, ev.Session.RefreshToken)
	assert.False(t, ev.Session.Expired(time.Now()))
}

func TestSignInWithPasswordRejected(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", true)

	err := c.SignInWithPassword(context.Background(), "a@b.com", "wrong")
	var berr *backend.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 400, berr.Status)
	assert.Equal(t, "Invalid login credentials", berr.Message)
	requireNoEvent(t, c)
}

func TestSignInWithPasswordUnconfirmed(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", false)

	err := c.SignInWithPassword(context.Background(), "a@b.com", "secret")
	require.EqualError(t, err, "Email not confirmed")
	requireNoEvent(t, c)
}

func TestSignUpRequiresConfirmation(t *testing.T) {
	bt, c := newTestClient(t)

	confirm, err := c.SignUp(context.Background(), "new@b.com", "secret")
	require.NoError(t, err)
	assert.True(t, confirm)
	requireNoEvent(t, c)
	assert.Len(t, bt.LastOTP("new@b.com"), 6)
}

func TestSignUpAutoConfirm(t *testing.T) {
	bt, c := newTestClient(t)
	bt.AutoConfirm = true

	confirm, err := c.SignUp(context.Background(), "new@b.com", "secret")
	require.NoError(t, err)
	assert.False(t, confirm)

	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "new@b.com", ev.Session.User.Email)
}

func TestSignUpDuplicate(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", true)

	_, err := c.SignUp(context.Background(), "a@b.com", "other")
	require.EqualError(t, err, "User already registered")
}

func TestVerifyOTPCompletesSignUp(t *testing.T) {
	bt, c := newTestClient(t)
	ctx := context.Background()

	confirm, err := c.SignUp(ctx, "new@b.com", "secret")
	require.NoError(t, err)
	require.True(t, confirm)

	require.NoError(t, c.VerifyOTP(ctx, "new@b.com", bt.LastOTP("new@b.com")))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)

	// Confirmed now: password sign-in works.
	require.NoError(t, c.SignInWithPassword(ctx, "new@b.com", "secret"))
}

func TestVerifyOTPWrongCode(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()
	_, err := c.SignUp(ctx, "new@b.com", "secret")
	require.NoError(t, err)

	err = c.VerifyOTP(ctx, "new@b.com", "000000")
	require.EqualError(t, err, "Token has expired or is invalid")
	requireNoEvent(t, c)
}

func TestResendOTPIssuesFreshCode(t *testing.T) {
	bt, c := newTestClient(t)
	ctx := context.Background()
	_, err := c.SignUp(ctx, "new@b.com", "secret")
	require.NoError(t, err)
	first := bt.LastOTP("new@b.com")

	require.NoError(t, c.ResendOTP(ctx, "new@b.com"))
	second := bt.LastOTP("new@b.com")
	assert.Len(t, second, 6)
	assert.NotEqual(t, first, second)
}

func TestSignInWithIDToken(t *testing.T) {
	bt, c := newTestClient(t)
	bt.AppleIdentities["apple-tok"] = "apple@b.com"

	require.NoError(t, c.SignInWithIDToken(context.Background(), "apple", "apple-tok"))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedIn, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "apple@b.com", ev.Session.User.Email)
}

func TestSignInWithIDTokenRejected(t *testing.T) {
	_, c := newTestClient(t)

	err := c.SignInWithIDToken(context.Background(), "apple", "bogus")
	require.EqualError(t, err, "Bad ID token")
	requireNoEvent(t, c)
}

func TestSignOutEmitsEvenOnBackendFailure(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", true)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "a@b.com", "secret"))
	nextEvent(t, c) // SIGNED_IN

	bt.FailSignOut = true
	err := c.SignOut(ctx)
	require.Error(t, err)

	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedOut, ev.Type)
	assert.Nil(t, ev.Session)
}

func TestSignOutSuccess(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", true)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "a@b.com", "secret"))
	nextEvent(t, c)

	require.NoError(t, c.SignOut(ctx))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventSignedOut, ev.Type)
}

func TestRestoreNoCachedSession(t *testing.T) {
	_, c := newTestClient(t)

	require.NoError(t, c.Restore(context.Background(), nil))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventInitial, ev.Type)
	assert.Nil(t, ev.Session)
}

func TestRestoreValidSession(t *testing.T) {
	bt, c := newTestClient(t)
	uid := bt.Seed("a@b.com", "secret", true)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "a@b.com", "secret"))
	cached := nextEvent(t, c).Session

	require.NoError(t, c.Restore(ctx, cached))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventInitial, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, uid, ev.Session.User.ID)
}

func TestRestoreExpiredSessionRefreshes(t *testing.T) {
	bt, c := newTestClient(t)
	bt.Seed("a@b.com", "secret", true)
	ctx := context.Background()
	require.NoError(t, c.SignInWithPassword(ctx, "a@b.com", "secret"))
	cached := nextEvent(t, c).Session

	expired := *cached
	expired.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	require.NoError(t, c.Restore(ctx, &expired))

	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventInitial, ev.Type)
	require.NotNil(t, ev.Session)
	assert.NotEqual(t, cached.AccessToken, ev.Session.AccessToken, "token should have been refreshed")
}

func TestRestoreRevokedSessionSignsOut(t *testing.T) {
	_, c := newTestClient(t)
	expired := &session.Session{
		AccessToken:  "stale",
		RefreshToken: "unknown",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
		User:         session.User{ID: "user-1"},
	}

	require.NoError(t, c.Restore(context.Background(), expired))
	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventInitial, ev.Type)
	assert.Nil(t, ev.Session, "revoked session drops to signed out")
}

func TestRestoreOfflineKeepsCachedSession(t *testing.T) {
	bt := backendtest.New()
	ts := httptest.NewServer(bt)
	c := New(ts.URL+"/auth/v1", "anon-key", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(c.Close)
	ts.Close() // backend unreachable

	cached := &session.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         session.User{ID: "user-1"},
	}
	err := c.Restore(context.Background(), cached)
	require.Error(t, err)

	ev := nextEvent(t, c)
	assert.Equal(t, backend.EventInitial, ev.Type)
	assert.Equal(t, cached, ev.Session, "offline startup keeps the cached session")
}

func TestUnconsumedEventsNeverBlockCalls(t *testing.T) {
	_, c := newTestClient(t)

	sess := &session.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		User:         session.User{ID: "user-1"},
	}
	// Nothing drains the stream; well past the buffer the sends must keep
	// returning instead of wedging the caller.
	for i := 0; i < eventBuffer+8; i++ {
		c.adopt(sess, backend.EventSignedIn)
	}

	assert.Len(t, c.events, eventBuffer, "overflow events are dropped, not queued")
	assert.Equal(t, sess, c.currentSession(), "the current session still tracks the last adopt")
}
