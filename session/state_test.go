package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmehta/authkit/store"
	"github.com/slmehta/authkit/store/memory"
)

// faultStore wraps a Store with injectable failures.
type faultStore struct {
	store.Store
	getErr error
	setErr error
	delErr error
}

func (f *faultStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *faultStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func (f *faultStore) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	return f.Store.Delete(ctx, key)
}

func testSession(id string) *Session {
	return &Session{
		AccessToken:  "at-" + id,
		RefreshToken: "rt-" + id,
		User:         User{ID: id},
	}
}

func TestStateInitialStateIsLoading(t *testing.T) {
	s, _ := NewState(memory.New(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	assert.True(t, s.Loading())
	assert.Nil(t, s.Current())
}

func TestStateLoadFreshInstall(t *testing.T) {
	s, _ := NewState(memory.New(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(context.Background())
	assert.False(t, s.Loading())
	assert.Nil(t, s.Current())
}

func TestStateLoadPersistedSession(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	orig := testSession("user-1")
	data, err := orig.Encode()
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, StorageKey, string(data)))

	s, _ := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)
	assert.False(t, s.Loading())
	assert.Equal(t, orig, s.Current())
}

func TestStateLoadCorruptCacheTreatedAsSignedOut(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	require.NoError(t, mem.Set(ctx, StorageKey, "not-a-session"))

	s, _ := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)
	assert.False(t, s.Loading())
	assert.Nil(t, s.Current())
}

func TestStateLoadStoreFailureTreatedAsSignedOut(t *testing.T) {
	fs := &faultStore{Store: memory.New(), getErr: errors.New("disk gone")}
	s, _ := NewState(fs, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(context.Background())
	assert.False(t, s.Loading())
	assert.Nil(t, s.Current())
}

func TestWriterSetPersists(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, w := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)

	sess := testSession("user-1")
	w.Set(ctx, sess)

	assert.Equal(t, sess, s.Current())
	raw, ok, err := mem.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

// Round-trip through storage and a fresh State: the reloaded value is
// structurally equal to the original.
func TestWriterSetRoundTripThroughReload(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s1, w := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s1.Load(ctx)
	orig := &Session{
		AccessToken:  "at",
		TokenType:    "bearer",
		ExpiresAt:    1900000000,
		RefreshToken: "rt",
		User:         User{ID: "user-1", Email: "a@b.com"},
	}
	w.Set(ctx, orig)

	s2, _ := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s2.Load(ctx)
	assert.Equal(t, orig, s2.Current())
}

func TestWriterSetNilClearsStore(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, w := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)
	w.Set(ctx, testSession("user-1"))
	w.Set(ctx, nil)

	assert.Nil(t, s.Current())
	_, ok, err := mem.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterSetLastWriteWins(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, w := NewState(mem, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)

	for _, id := range []string{"a", "b", "c"} {
		w.Set(ctx, testSession(id))
	}
	assert.Equal(t, "c", s.Current().User.ID)
	raw, ok, err := mem.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "c", got.User.ID)
}

func TestWriterSetPersistFailureKeepsMemoryValue(t *testing.T) {
	ctx := context.Background()
	fs := &faultStore{Store: memory.New(), setErr: errors.New("disk full")}
	s, w := NewState(fs, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Load(ctx)

	sess := testSession("user-1")
	w.Set(ctx, sess)
	// No rollback: the backend is authoritative, memory keeps the new value.
	assert.Equal(t, sess, s.Current())
}

func TestSubscribeObservesTransitionsInOrder(t *testing.T) {
	ctx := context.Background()
	s, w := NewState(memory.New(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var seen []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) {
		seen = append(seen, snap)
	})
	defer cancel()

	s.Load(ctx)
	w.Set(ctx, testSession("user-1"))
	w.Set(ctx, nil)

	require.Len(t, seen, 3)
	assert.Equal(t, Snapshot{Loading: false, Session: nil}, seen[0])
	assert.Equal(t, "user-1", seen[1].Session.User.ID)
	assert.Nil(t, seen[2].Session)
}

func TestSubscribeCancelStopsNotifications(t *testing.T) {
	ctx := context.Background()
	s, w := NewState(memory.New(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	calls := 0
	cancel := s.Subscribe(func(Snapshot) { calls++ })
	s.Load(ctx)
	cancel()
	w.Set(ctx, testSession("user-1"))

	assert.Equal(t, 1, calls)
}
