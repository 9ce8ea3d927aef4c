// Package backend defines the contract with the hosted auth provider: the
// operations the app may invoke and the push-style auth-state-change stream
// it observes.
package backend

import (
	"context"

	"github.com/slmehta/authkit/session"
)

// EventType classifies an auth-state-change event.
type EventType string

const (
	// EventInitial is delivered exactly once after subscription, carrying the
	// reconciled current state.
	EventInitial EventType = "INITIAL_SESSION"
	// EventSignedIn is delivered when a sign-in, sign-up confirmation, or
	// identity-token exchange produces a session.
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut is delivered when the session is terminated.
	EventSignedOut EventType = "SIGNED_OUT"
	// EventTokenRefreshed is delivered when the session's token material is
	// replaced.
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	// EventUserUpdated is delivered when the embedded user record changes.
	EventUserUpdated EventType = "USER_UPDATED"
)

// Event is one auth-state-change notification. Session is the complete new
// state, nil when signed out. Events are delivered in emission order, without
// batching; the payload of the last event processed is the session truth.
type Event struct {
	Type    EventType
	Session *session.Session
}

// Client is the backend auth provider. Calls are safe for the user to retry;
// none are retried automatically.
type Client interface {
	// SignInWithPassword performs a password sign-in. On success the client
	// emits a SIGNED_IN event; the session is never returned directly.
	SignInWithPassword(ctx context.Context, email, password string) error
	// SignUp registers a new account. confirmationRequired is true when the
	// backend returned no session (the address must be confirmed via OTP
	// before sign-in completes).
	SignUp(ctx context.Context, email, password string) (confirmationRequired bool, err error)
	// SignInWithIDToken exchanges a platform identity token (e.g. Apple) for
	// a session.
	SignInWithIDToken(ctx context.Context, provider, idToken string) error
	// VerifyOTP completes sign-up confirmation with a one-time code.
	VerifyOTP(ctx context.Context, email, code string) error
	// ResendOTP requests a fresh one-time code for the address.
	ResendOTP(ctx context.Context, email string) error
	// SignOut terminates the backend session. A SIGNED_OUT event is emitted
	// even when the backend call fails, so local state always clears.
	SignOut(ctx context.Context) error
	// Restore reconciles a locally cached session with the backend's
	// authoritative state (refreshing an expired token, dropping a revoked
	// one) and emits the INITIAL_SESSION event with the outcome.
	Restore(ctx context.Context, cached *session.Session) error
	// Events returns the auth-state-change stream. The stream is owned by the
	// client and closed by Close.
	Events() <-chan Event
	// Close releases the subscription stream.
	Close()
}

// Error is a backend rejection. Message carries the backend's own
// human-readable message verbatim, which is what the UI shows.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
