// Package gotrue implements backend.Client against a GoTrue-style REST auth
// API (the surface exposed by hosted backend-as-a-service platforms).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/slmehta/authkit/backend"
	"github.com/slmehta/authkit/session"
)

const eventBuffer = 32

// Client talks to a GoTrue-style auth endpoint and emits auth-state-change
// events for every session transition its own calls produce, mirroring the
// client-side event emission of the platform SDKs. Events are emitted before
// the producing call returns, so a caller that observed a successful call
// never races the event that carries its session.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	current *session.Session

	events    chan backend.Event
	closeOnce sync.Once
}

var _ backend.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Default: 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the auth API rooted at baseURL (e.g.
// "https://project.example.co/auth/v1"). apiKey is the publishable anon key
// sent with every request.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		events:  make(chan backend.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c
}

// Events returns the auth-state-change stream. Consume it while the client is
// in use; events past the buffer are dropped, never blocked on.
func (c *Client) Events() <-chan backend.Event {
	return c.events
}

// Close closes the event stream. No calls may be made after Close.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// adopt replaces the client's current session and emits the event carrying it.
// The send never blocks: with no consumer draining the stream, events past the
// buffer are dropped and logged rather than wedged on the channel.
func (c *Client) adopt(sess *session.Session, typ backend.EventType) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	select {
	case c.events <- backend.Event{Type: typ, Session: sess}:
	default:
		c.logger.Warn("event stream full, dropping auth state change", "event", string(typ))
	}
}

func (c *Client) currentSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// authResponse covers both response shapes the auth API uses: token grants
// return the session at the top level, sign-up returns it nested (or omits
// it entirely for unconfirmed accounts).
type authResponse struct {
	session.Session
	Nested *session.Session `json:"session"`
}

func (r *authResponse) sessionValue() *session.Session {
	if r.Nested != nil {
		return r.Nested
	}
	if r.AccessToken != "" {
		s := r.Session
		return &s
	}
	return nil
}

// errorResponse covers the error body variants emitted by the auth API.
type errorResponse struct {
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error"`
}

func (e *errorResponse) message() string {
	for _, m := range []string{e.ErrorDescription, e.Msg, e.Message, e.ErrorCode} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eresp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		msg := eresp.message()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &backend.Error{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "", &resp)
	if err != nil {
		return err
	}
	sess := resp.sessionValue()
	if sess == nil {
		return &backend.Error{Status: http.StatusOK, Message: "sign-in succeeded but no session was returned"}
	}
	c.adopt(sess, backend.EventSignedIn)
	return nil
}

func (c *Client) SignUp(ctx context.Context, email, password string) (bool, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/signup", map[string]string{
		"email":    email,
		"password": password,
	}, "", &resp)
	if err != nil {
		return false, err
	}
	sess := resp.sessionValue()
	if sess == nil {
		// Unconfirmed account: the caller shows the OTP entry path.
		return true, nil
	}
	c.adopt(sess, backend.EventSignedIn)
	return false, nil
}

func (c *Client) SignInWithIDToken(ctx context.Context, provider, idToken string) error {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=id_token", map[string]string{
		"provider": provider,
		"id_token": idToken,
	}, "", &resp)
	if err != nil {
		return err
	}
	sess := resp.sessionValue()
	if sess == nil {
		return &backend.Error{Status: http.StatusOK, Message: "identity exchange succeeded but no session was returned"}
	}
	c.adopt(sess, backend.EventSignedIn)
	return nil
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) error {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/verify", map[string]string{
		"type":  "signup",
		"email": email,
		"token": code,
	}, "", &resp)
	if err != nil {
		return err
	}
	if sess := resp.sessionValue(); sess != nil {
		c.adopt(sess, backend.EventSignedIn)
	}
	return nil
}

func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/resend", map[string]string{
		"type":  "signup",
		"email": email,
	}, "", nil)
}

// SignOut terminates the backend session. The SIGNED_OUT event is emitted
// even when the backend call fails: local sign-out must always succeed, even
// offline.
func (c *Client) SignOut(ctx context.Context) error {
	var bearer string
	if cur := c.currentSession(); cur != nil {
		bearer = cur.AccessToken
	}
	err := c.do(ctx, http.MethodPost, "/logout", nil, bearer, nil)
	c.adopt(nil, backend.EventSignedOut)
	return err
}

// Restore reconciles a cached session with the backend and emits the
// INITIAL_SESSION event with the outcome. An expired token is refreshed; a
// revoked one is dropped; on transport failure the cached session is kept so
// the app still opens authenticated while offline (the backend wins at the
// next reachable call).
func (c *Client) Restore(ctx context.Context, cached *session.Session) error {
	if cached == nil {
		c.adopt(nil, backend.EventInitial)
		return nil
	}
	if cached.Expired(time.Now()) {
		return c.restoreViaRefresh(ctx, cached)
	}

	var user session.User
	err := c.do(ctx, http.MethodGet, "/user", nil, cached.AccessToken, &user)
	if err == nil {
		updated := *cached
		updated.User = user
		c.adopt(&updated, backend.EventInitial)
		return nil
	}
	var berr *backend.Error
	if errors.As(err, &berr) && (berr.Status == http.StatusUnauthorized || berr.Status == http.StatusForbidden) {
		// Token invalidated while the app was closed; the refresh token may
		// still be good.
		return c.restoreViaRefresh(ctx, cached)
	}
	c.adopt(cached, backend.EventInitial)
	return err
}

func (c *Client) restoreViaRefresh(ctx context.Context, cached *session.Session) error {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", map[string]string{
		"refresh_token": cached.RefreshToken,
	}, "", &resp)
	if err == nil {
		if sess := resp.sessionValue(); sess != nil {
			c.adopt(sess, backend.EventInitial)
			return nil
		}
	}
	var berr *backend.Error
	if errors.As(err, &berr) {
		// Refresh token rejected: the session is gone for good.
		c.logger.Info("cached session rejected by backend, signing out", "status", berr.Status)
		c.adopt(nil, backend.EventInitial)
		return nil
	}
	c.adopt(cached, backend.EventInitial)
	return err
}
