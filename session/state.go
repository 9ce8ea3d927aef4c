package session

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/slmehta/authkit/store"
)

// Snapshot is one observed state of the session cache.
type Snapshot struct {
	Loading bool
	Session *Session
}

// Writer is the single mutation handle for a State. NewState returns exactly
// one; whoever holds it is the sole writer of session truth. Everything else
// sees read-only accessors.
type Writer struct {
	state *State
}

// Set replaces the current session (nil clears it), notifies subscribers,
// and persists the new value. Persistence failures are logged, never
// surfaced: the backend is authoritative and the local copy is a cache.
func (w *Writer) Set(ctx context.Context, sess *Session) {
	w.state.set(ctx, sess)
}

// State holds the session cache: a loading flag that is true until the one
// initial store read resolves, and the current session value. It is the Go
// rendering of a [isLoading, value] state pair with subscribe semantics.
type State struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	loading bool
	current *Session
	subs    map[int]func(Snapshot)
	nextSub int
}

// StateOption configures a State.
type StateOption func(*State)

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// NewState creates a session State over the given store, along with its only
// Writer. Initial state: loading with no session.
func NewState(st store.Store, opts ...StateOption) (*State, *Writer) {
	s := &State{
		store:   st,
		loading: true,
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s, &Writer{state: s}
}

// Loading reports whether the initial store read is still outstanding.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Current returns the session value, nil when signed out or still loading.
func (s *State) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshot returns the loading flag and session value atomically.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Loading: s.loading, Session: s.current}
}

// Subscribe registers fn to be called, in order, on every state transition.
// The returned cancel func removes the subscription. fn is invoked from the
// writer's goroutine; it must not block.
func (s *State) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Load performs the one initial read of the persisted session. Any store
// failure or undecodable value degrades to "no session"; a fresh install and
// a corrupt cache look the same to callers. Transitions loading to false.
func (s *State) Load(ctx context.Context) {
	var sess *Session
	raw, ok, err := s.store.Get(ctx, StorageKey)
	switch {
	case err != nil:
		s.logger.Warn("session cache read failed, treating as signed out", "error", err)
	case ok:
		sess, err = Parse([]byte(raw))
		if err != nil {
			s.logger.Warn("discarding undecodable cached session", "error", err)
			sess = nil
		}
	}
	s.transition(false, sess)
}

func (s *State) set(ctx context.Context, sess *Session) {
	s.transition(false, sess)
	s.persist(ctx, sess)
}

func (s *State) transition(loading bool, sess *Session) {
	s.mu.Lock()
	s.loading = loading
	s.current = sess
	snap := Snapshot{Loading: loading, Session: sess}
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// persist mirrors the in-memory value to the store. Writes are not rolled
// back on failure; the next auth-state event simply overwrites. Writes stay
// ordered because only the single Writer calls set.
func (s *State) persist(ctx context.Context, sess *Session) {
	if sess == nil {
		if err := s.store.Delete(ctx, StorageKey); err != nil {
			s.logger.Warn("clearing session cache failed", "error", err)
		}
		return
	}
	data, err := sess.Encode()
	if err != nil {
		s.logger.Warn("encoding session failed", "error", err)
		return
	}
	if err := s.store.Set(ctx, StorageKey, string(data)); err != nil {
		s.logger.Warn("persisting session failed", "error", err)
	}
}
