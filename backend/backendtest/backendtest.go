// Package backendtest provides an in-process fake of the hosted backend:
// the auth API, the profiles table, and the avatar bucket. It backs the
// scenario tests and the CLI's local dev mode.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = time.Hour

var jwtSecret = []byte("backendtest-secret")

type user struct {
	id        string
	email     string
	hash      []byte
	confirmed bool
}

type object struct {
	contentType string
	data        []byte
}

// Server is the fake backend. Configure the exported fields before serving.
type Server struct {
	// AutoConfirm makes sign-up return a session immediately instead of
	// requiring OTP confirmation.
	AutoConfirm bool
	// FailSignOut makes /logout return HTTP 500, for exercising the
	// "local sign-out always succeeds" path.
	FailSignOut bool
	// AppleIdentities maps accepted Apple identity tokens to user emails.
	AppleIdentities map[string]string

	mu       sync.Mutex
	users    map[string]*user   // by email
	tokens   map[string]string  // access token -> email
	refresh  map[string]string  // refresh token -> email
	otps     map[string]string  // email -> pending code
	otpSeq   int
	profiles map[string]map[string]any // user id -> row
	objects  map[string]object         // bucket path -> object
}

// New creates an empty fake backend.
func New() *Server {
	return &Server{
		AppleIdentities: make(map[string]string),
		users:           make(map[string]*user),
		tokens:          make(map[string]string),
		refresh:         make(map[string]string),
		otps:            make(map[string]string),
		profiles:        make(map[string]map[string]any),
		objects:         make(map[string]object),
	}
}

// Seed registers a user directly, bypassing the sign-up flow.
// Returns the user id.
func (s *Server) Seed(email, password string, confirmed bool) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("backendtest: bcrypt: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{id: uuid.NewString(), email: email, hash: hash, confirmed: confirmed}
	s.users[email] = u
	return u.id
}

// LastOTP returns the pending one-time code for the address, or "".
func (s *Server) LastOTP(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otps[email]
}

// Profile returns a copy of the stored profile row for the user id, or nil.
func (s *Server) Profile(userID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Object returns the stored bucket object for a path like
// "avatars/<uid>/<name>", or nil.
func (s *Server) Object(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[path]
	if !ok {
		return nil
	}
	return append([]byte(nil), o.data...)
}

func (s *Server) nextOTP() string {
	s.otpSeq++
	return fmt.Sprintf("%06d", (s.otpSeq*104729)%1000000)
}

// ServeHTTP serves the full fake backend surface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router().ServeHTTP(w, r)
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Post("/signup", s.handleSignUp)
		r.Post("/verify", s.handleVerify)
		r.Post("/resend", s.handleResend)
		r.Post("/logout", s.handleLogout)
		r.Get("/user", s.handleUser)
	})
	r.Route("/rest/v1", func(r chi.Router) {
		r.Get("/profiles", s.handleProfileGet)
		r.Post("/profiles", s.handleProfileUpsert)
	})
	r.Route("/storage/v1/object", func(r chi.Router) {
		r.Post("/avatars/*", s.handleUpload)
		r.Get("/public/avatars/*", s.handleDownload)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "msg": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeAuthError(w, http.StatusBadRequest, "could not decode request body")
		return false
	}
	return true
}

// issueSessionLocked mints a session payload for the user. Caller holds mu.
func (s *Server) issueSessionLocked(u *user) map[string]any {
	now := time.Now()
	exp := now.Add(tokenLifetime)
	claims := jwt.RegisteredClaims{
		Subject:   u.id,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		panic(fmt.Sprintf("backendtest: signing token: %v", err))
	}
	refresh := uuid.NewString()
	s.tokens[access] = u.email
	s.refresh[refresh] = u.email
	return map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int64(tokenLifetime.Seconds()),
		"expires_at":    exp.Unix(),
		"refresh_token": refresh,
		"user":          userJSON(u),
	}
}

func userJSON(u *user) map[string]any {
	return map[string]any{"id": u.id, "email": u.email}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.handlePasswordGrant(w, r)
	case "id_token":
		s.handleIDTokenGrant(w, r)
	case "refresh_token":
		s.handleRefreshGrant(w, r)
	default:
		writeAuthError(w, http.StatusBadRequest, "unsupported grant type")
	}
}

func (s *Server) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeAuthError(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	if !u.confirmed {
		writeAuthError(w, http.StatusBadRequest, "Email not confirmed")
		return
	}
	writeJSON(w, http.StatusOK, s.issueSessionLocked(u))
}

func (s *Server) handleIDTokenGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		IDToken  string `json:"id_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Provider != "apple" {
		writeAuthError(w, http.StatusBadRequest, "unsupported identity provider")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.AppleIdentities[req.IDToken]
	if !ok {
		writeAuthError(w, http.StatusBadRequest, "Bad ID token")
		return
	}
	u, ok := s.users[email]
	if !ok {
		u = &user{id: uuid.NewString(), email: email, confirmed: true}
		s.users[email] = u
	}
	writeJSON(w, http.StatusOK, s.issueSessionLocked(u))
}

func (s *Server) handleRefreshGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeAuthError(w, http.StatusBadRequest, "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	delete(s.refresh, req.RefreshToken)
	writeJSON(w, http.StatusOK, s.issueSessionLocked(s.users[email]))
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeAuthError(w, http.StatusUnprocessableEntity, "User already registered")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeAuthError(w, http.StatusInternalServerError, "could not hash password")
		return
	}
	u := &user{id: uuid.NewString(), email: req.Email, hash: hash, confirmed: s.AutoConfirm}
	s.users[req.Email] = u
	if s.AutoConfirm {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":    userJSON(u),
			"session": s.issueSessionLocked(u),
		})
		return
	}
	s.otps[req.Email] = s.nextOTP()
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(u)})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  string `json:"type"`
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.otps[req.Email]
	if !ok || code != req.Token {
		writeAuthError(w, http.StatusForbidden, "Token has expired or is invalid")
		return
	}
	delete(s.otps, req.Email)
	u := s.users[req.Email]
	u.confirmed = true
	writeJSON(w, http.StatusOK, s.issueSessionLocked(u))
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  string `json:"type"`
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok || u.confirmed {
		// Same response either way; the real backend does not leak whether
		// an address is registered.
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.otps[req.Email] = s.nextOTP()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.FailSignOut {
		writeAuthError(w, http.StatusInternalServerError, "service unavailable")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok := bearerToken(r); tok != "" {
		delete(s.tokens, tok)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.tokens[bearerToken(r)]
	if !ok {
		writeAuthError(w, http.StatusUnauthorized, "invalid JWT")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(s.users[email]))
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "missing id filter"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.profiles[id]
	if !ok {
		// Single-object request with zero rows.
		writeJSON(w, http.StatusNotAcceptable, map[string]any{
			"message": "JSON object requested, multiple (or no) rows returned",
		})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleProfileUpsert(w http.ResponseWriter, r *http.Request) {
	var row map[string]any
	if !decodeBody(w, r, &row) {
		return
	}
	id, _ := row["id"].(string)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "id is required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[id]
	if !ok || !strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
		s.profiles[id] = row
	} else {
		for k, v := range row {
			existing[k] = v
		}
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	path := "avatars/" + rel
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "could not read body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[path]; exists && r.Header.Get("x-upsert") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "The resource already exists"})
		return
	}
	s.objects[path] = object{contentType: r.Header.Get("Content-Type"), data: data}
	writeJSON(w, http.StatusOK, map[string]any{"Key": path})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := "avatars/" + chi.URLParam(r, "*")
	s.mu.Lock()
	o, ok := s.objects[path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Object not found"})
		return
	}
	w.Header().Set("Content-Type", o.contentType)
	w.Write(o.data)
}
