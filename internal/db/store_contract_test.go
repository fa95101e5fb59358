package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wuwenbin0122/supportdesk/internal/kv"
)

// exerciseStore runs the get/set/remove round trip every backend must honour.
func exerciseStore(t *testing.T, store kv.Store, key string) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got %v", err)
	}

	if err := store.Set(ctx, key, `[{"id":"1"}]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, key, `[{"id":"2"}]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `[{"id":"2"}]` {
		t.Fatalf("expected overwritten value, got %s", value)
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}
