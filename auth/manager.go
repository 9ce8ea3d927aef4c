// Package auth owns the session lifecycle: it mediates between the UI-facing
// operations (sign-in, sign-up, OTP, sign-out) and the backend auth provider,
// and it is the sole writer of session truth.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/slmehta/authkit/backend"
	"github.com/slmehta/authkit/session"
)

// Platform identifies the runtime platform, which gates platform-specific
// sign-in methods.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// IdentityTokenSource obtains a platform identity token for Apple Sign-In.
// Implementations return ErrSignInCanceled when the user dismisses the
// platform prompt.
type IdentityTokenSource interface {
	IdentityToken(ctx context.Context) (string, error)
}

// Manager coordinates the backend client and the local session state.
//
// Session truth has exactly one writer: the event loop consuming the
// backend's auth-state-change stream. Explicit operations never write the
// session directly (sign-out excepted, which must clear local state even
// when the backend is unreachable), so a call's result can never race a
// concurrently delivered backend event.
type Manager struct {
	client   backend.Client
	state    *session.State
	writer   *session.Writer
	platform Platform
	apple    IdentityTokenSource
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithPlatform sets the runtime platform. Default: PlatformWeb.
func WithPlatform(p Platform) Option {
	return func(m *Manager) {
		m.platform = p
	}
}

// WithAppleCredentials sets the identity token source used by Apple Sign-In.
func WithAppleCredentials(src IdentityTokenSource) Option {
	return func(m *Manager) {
		m.apple = src
	}
}

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager over the given backend client and session state.
// The Writer must be the one returned by session.NewState for that State;
// the Manager takes ownership of it.
func New(client backend.Client, state *session.State, writer *session.Writer, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		state:    state,
		writer:   writer,
		platform: PlatformWeb,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return m
}

// State returns the read-only session state for guards and screens.
func (m *Manager) State() *session.State {
	return m.state
}

// Start loads the cached session, reconciles it with the backend's
// authoritative state (a token may have expired while the app was closed),
// and spawns the event loop that applies auth-state-change events for the
// Manager's lifetime.
func (m *Manager) Start(ctx context.Context) {
	m.state.Load(ctx)
	if err := m.client.Restore(ctx, m.state.Current()); err != nil {
		// Reconcile is best-effort: offline startup keeps the cached session.
		m.logger.Warn("session reconcile incomplete", "error", err)
	}
	// Restore emits its INITIAL_SESSION event before returning. Apply it
	// here, ahead of the loop, so state is reconciled once Start returns.
	select {
	case ev := <-m.client.Events():
		m.logger.Debug("auth state change", "event", string(ev.Type), "signed_in", ev.Session != nil)
		m.writer.Set(ctx, ev.Session)
	default:
	}
	m.wg.Add(1)
	go m.loop()
}

// Close stops the event loop. It does not close the backend client.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// loop is the single writer of session truth. Every event overwrites the
// persisted session with the event's payload, in delivery order.
func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.client.Events():
			if !ok {
				return
			}
			m.logger.Debug("auth state change", "event", string(ev.Type), "signed_in", ev.Session != nil)
			m.writer.Set(context.Background(), ev.Session)
		}
	}
}

// normalizeEmail canonicalizes user-typed addresses before they reach the
// backend.
func normalizeEmail(email string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(email)))
}

// SignIn performs a password sign-in. The session is populated by the
// subscription event the backend client emits, not by this call.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	return m.client.SignInWithPassword(ctx, normalizeEmail(email), password)
}

// SignUp registers a new account. confirmationRequired is true when the
// backend returned no session: the account exists but the address must be
// confirmed (OTP entry / "check your inbox") before signing in.
func (m *Manager) SignUp(ctx context.Context, email, password string) (confirmationRequired bool, err error) {
	return m.client.SignUp(ctx, normalizeEmail(email), password)
}

// SignInWithApple obtains a platform identity token and exchanges it with
// the backend. Only valid on iOS.
func (m *Manager) SignInWithApple(ctx context.Context) error {
	if m.platform != PlatformIOS {
		return ErrAppleUnsupported
	}
	if m.apple == nil {
		return ErrNoIdentityToken
	}
	token, err := m.apple.IdentityToken(ctx)
	if err != nil {
		if errors.Is(err, ErrSignInCanceled) {
			return ErrSignInCanceled
		}
		return err
	}
	if token == "" {
		return ErrNoIdentityToken
	}
	return m.client.SignInWithIDToken(ctx, "apple", token)
}

// VerifyOTP completes sign-up confirmation. A code that is not exactly six
// digits is rejected locally without a network round trip.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) error {
	code = strings.TrimSpace(code)
	if !validOTP(code) {
		return ErrBadOTPLength
	}
	return m.client.VerifyOTP(ctx, normalizeEmail(email), code)
}

// ResendOTP requests a fresh confirmation code for the address.
func (m *Manager) ResendOTP(ctx context.Context, email string) error {
	return m.client.ResendOTP(ctx, normalizeEmail(email))
}

// SignOut terminates the backend session and clears the local one. The local
// clear happens regardless of the backend call's outcome: sign-out must
// always succeed, even offline. Backend failure is logged, not returned.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.client.SignOut(ctx); err != nil {
		m.logger.Warn("backend sign-out failed, clearing local session anyway", "error", err)
	}
	m.writer.Set(ctx, nil)
	return nil
}

func validOTP(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
