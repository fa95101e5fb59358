package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wuwenbin0122/supportdesk/internal/kv"
)

func TestMemoryGetSetRemove(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}

	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected key gone after remove, got %v", err)
	}

	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatalf("removing a missing key should succeed: %v", err)
	}
}
