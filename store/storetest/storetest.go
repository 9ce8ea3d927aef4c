// Package storetest provides a conformance suite run against every
// store.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/slmehta/authkit/store"
)

// Run exercises the common Store contract against the given implementation.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "no-such-key")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for missing key")
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := s.Set(ctx, "k1", "v1"); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := s.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok {
			t.Fatal("expected to find value")
		}
		if got != "v1" {
			t.Fatalf("got %q, want %q", got, "v1")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "k2", "first"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "k2", "second"); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := s.Get(ctx, "k2")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok || got != "second" {
			t.Fatalf("got (%q, %v), want (%q, true)", got, ok, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Set(ctx, "k3", "v3"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Delete(ctx, "k3"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		_, ok, err := s.Get(ctx, "k3")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Fatal("expected value to be deleted")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		// Not an error.
		if err := s.Delete(ctx, "never-existed"); err != nil {
			t.Fatalf("delete missing: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		if err := s.Set(ctx, "k4", ""); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := s.Get(ctx, "k4")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok {
			t.Fatal("empty value should still be present")
		}
		if got != "" {
			t.Fatalf("got %q, want empty string", got)
		}
	})
}
