package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/slmehta/authkit/auth"
	"github.com/slmehta/authkit/backend/gotrue"
	"github.com/slmehta/authkit/config"
	"github.com/slmehta/authkit/guard"
	"github.com/slmehta/authkit/profile"
	"github.com/slmehta/authkit/session"
	"github.com/slmehta/authkit/splash"
	"github.com/slmehta/authkit/store"
	boltstore "github.com/slmehta/authkit/store/bolt"
	memstore "github.com/slmehta/authkit/store/memory"
	redisstore "github.com/slmehta/authkit/store/redis"
)

const (
	settleTimeout = 10 * time.Second
	eventTimeout  = 5 * time.Second
)

// app wires the client stack the way the mobile app boots it:
// config -> store -> session state -> backend client -> manager.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	state    *session.State
	client   *gotrue.Client
	manager  *auth.Manager
	profiles *profile.Service
	route    *guard.Guard
	closers  []func()
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	a := &app{cfg: cfg, logger: logger}
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}

	state, writer := session.NewState(st, session.WithLogger(logger))
	client := gotrue.New(cfg.BackendURL+"/auth/v1", cfg.AnonKey, gotrue.WithLogger(logger))
	manager := auth.New(client, state, writer,
		auth.WithPlatform(auth.Platform(cfg.Platform)),
		auth.WithLogger(logger))

	a.state = state
	a.client = client
	a.manager = manager
	a.profiles = profile.New(cfg.BackendURL, cfg.AnonKey, state, profile.WithLogger(logger))
	return a, nil
}

func (a *app) openStore() (store.Store, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { client.Close() })
		return redisstore.New(client), nil
	default:
		if err := os.MkdirAll(filepath.Dir(a.cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		bs, err := boltstore.Open(a.cfg.StorePath, nil)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { bs.Close() })
		return bs, nil
	}
}

// start boots the session: cached load, backend reconcile, event loop. First
// output is gated the way the app gates first paint: the splash coordinator
// holds until the session check resolves, and the route guard tracks where
// the session state points from then on.
func (a *app) start(ctx context.Context) {
	revealed := make(chan struct{})
	coord := splash.New(func() { close(revealed) })
	// The CLI has no splash animation to wait out.
	coord.AnimationFinished()
	detach := coord.Attach(a.state)
	defer detach()

	a.route = guard.New(func(r guard.Route) {
		a.logger.Debug("route change", "route", r.String())
	})
	a.closers = append(a.closers, a.route.Attach(a.state))

	a.manager.Start(ctx)
	select {
	case <-revealed:
	case <-time.After(settleTimeout):
		a.logger.Warn("timed out waiting for session reconcile, proceeding with cached state")
	}
}

// requireApp rejects commands that need the authenticated area when the
// route guard points elsewhere.
func (a *app) requireApp() error {
	if a.route.Current() != guard.RouteApp {
		return errors.New(`not signed in: run "authkit login" first`)
	}
	return nil
}

func (a *app) close() {
	a.manager.Close()
	a.client.Close()
	for _, fn := range a.closers {
		fn()
	}
}

// waitFor blocks until the session state satisfies cond or the timeout
// elapses. Used after operations whose session arrives via the event loop.
func waitFor(state *session.State, timeout time.Duration, cond func(session.Snapshot) bool) bool {
	done := make(chan struct{})
	var once sync.Once
	check := func(snap session.Snapshot) {
		if cond(snap) {
			once.Do(func() { close(done) })
		}
	}
	cancel := state.Subscribe(check)
	defer cancel()
	check(state.Snapshot())

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func signedIn(snap session.Snapshot) bool {
	return !snap.Loading && snap.Session != nil
}
