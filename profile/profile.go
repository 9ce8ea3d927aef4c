// Package profile is the client for the user-editable profile record and its
// avatar object. Profiles live in the backend relational store, one row per
// user, keyed by the session's user id.
package profile

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
	"path"
	"strings"
	"time"

	"github.com/slmehta/authkit/backend"
	"github.com/slmehta/authkit/session"
)

// ErrNoSession indicates a profile operation was attempted without an
// authenticated session.
var ErrNoSession = errors.New("no user on the session")

// Profile is the user-editable record. ID always equals the session's user
// id; the row is upserted, never separately inserted or updated. Every
// user-editable field is serialized even when empty, so a merge upsert can
// clear a previously set value.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Website   string `json:"website"`
	AvatarURL string `json:"avatar_url"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Service talks to the profiles table and the avatar bucket. It reads the
// current session for auth but never mutates it.
type Service struct {
	baseURL string
	apiKey  string
	state   *session.State
	hc      *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client. Default: 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.hc = hc
	}
}

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a Service for the backend project rooted at baseURL (the
// project URL, not the auth path).
func New(baseURL, apiKey string, state *session.State, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		state:   state,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hc == nil {
		s.hc = &http.Client{Timeout: 30 * time.Second}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s
}

func (s *Service) currentUser() (*session.Session, error) {
	sess := s.state.Current()
	if sess == nil || sess.User.ID == "" {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (s *Service) do(ctx context.Context, method, urlPath string, headers map[string]string, body io.Reader, out any) error {
	sess, err := s.currentUser()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+urlPath, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eresp struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		msg := eresp.Message
		if msg == "" {
			msg = eresp.Msg
		}
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

// Get fetches the current user's profile. A user who has never saved one gets
// an empty profile carrying their id, not an error.
func (s *Service) Get(ctx context.Context) (Profile, error) {
	sess, err := s.currentUser()
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	err = s.do(ctx, http.MethodGet,
		"/rest/v1/profiles?id=eq."+sess.User.ID+"&select=id,username,website,avatar_url,name,surname",
		map[string]string{"Accept": "application/vnd.pgrst.object+json"},
		nil, &p)
	if err != nil {
		var berr *backend.Error
		// 406: single-object request matched no rows.
		if errors.As(err, &berr) && berr.Status == http.StatusNotAcceptable {
			return Profile{ID: sess.User.ID}, nil
		}
		return Profile{}, err
	}
	p.ID = sess.User.ID
	return p, nil
}

// Upsert saves the profile for the current user. The row id is forced to the
// session's user id and updated_at is stamped; the write is always an upsert.
func (s *Service) Upsert(ctx context.Context, p Profile) error {
	sess, err := s.currentUser()
	if err != nil {
		return err
	}
	p.ID = sess.User.ID
	p.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	return s.upsertRow(ctx, p)
}

func (s *Service) upsertRow(ctx context.Context, row any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.do(ctx, http.MethodPost, "/rest/v1/profiles",
		map[string]string{
			"Content-Type": "application/json",
			"Prefer":       "resolution=merge-duplicates",
		},
		bytes.NewReader(data), nil)
}

// UploadAvatar stores the image under <user-id>/<unix-ms>.<ext> in the
// avatar bucket (overwrite-on-conflict), records the public URL on the
// profile, and returns it.
func (s *Service) UploadAvatar(ctx context.Context, filename string, r io.Reader) (string, error) {
	sess, err := s.currentUser()
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "jpeg"
	}
	objectPath := fmt.Sprintf("%s/%d.%s", sess.User.ID, s.now().UnixMilli(), ext)

	err = s.do(ctx, http.MethodPost, "/storage/v1/object/avatars/"+objectPath,
		map[string]string{
			"Content-Type": "image/jpeg",
			"x-upsert":     "true",
		},
		r, nil)
	if err != nil {
		return "", err
	}

	publicURL := s.baseURL + "/storage/v1/object/public/avatars/" + objectPath
	err = s.upsertRow(ctx, map[string]string{
		"id":         sess.User.ID,
		"avatar_url": publicURL,
		"updated_at": s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return publicURL, nil
}
