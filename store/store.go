// Package store provides the persistent key-value storage abstraction used
// to cache session state across process restarts.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the underlying storage primitive cannot be
// reached (file locked, connection refused). Callers treat a failing read as
// "no value" rather than a fatal condition.
var ErrUnavailable = errors.New("store unavailable")

// Store abstracts a string-keyed key-value store so that values can be kept
// in-memory (tests, demos), in a local file database, or in Redis. All
// implementations present the same asynchronous-safe contract even when the
// underlying primitive is synchronous. Last write wins; there are no
// partial-write semantics.
type Store interface {
	// Get retrieves the value for key. ok is false when no value is set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error
	// Delete removes the value for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
