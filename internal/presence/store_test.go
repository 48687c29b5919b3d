package presence

import (
	"context"
	"os"
	"testing"
)

// setupTestStore connects to a local Redis or skips the test.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	store, err := NewStore(addr)
	if err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBindAndLookup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	email := "presence-test-1@nitc.ac.in"
	defer store.client.Del(ctx, KeyPrefix+email)

	if err := store.Bind(ctx, email, "conn-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	connID, err := store.Lookup(ctx, email)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if connID != "conn-1" {
		t.Errorf("lookup = %q, want conn-1", connID)
	}
}

func TestLookupMissingIsEmpty(t *testing.T) {
	store := setupTestStore(t)

	connID, err := store.Lookup(context.Background(), "nobody@nitc.ac.in")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if connID != "" {
		t.Errorf("lookup of unbound email = %q, want empty", connID)
	}
}

func TestRebindReplacesConnection(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	email := "presence-test-2@nitc.ac.in"
	defer store.client.Del(ctx, KeyPrefix+email)

	store.Bind(ctx, email, "conn-old")
	store.Bind(ctx, email, "conn-new")

	connID, _ := store.Lookup(ctx, email)
	if connID != "conn-new" {
		t.Errorf("lookup after rebind = %q, want conn-new", connID)
	}
}

func TestClearOnlyRemovesOwnBinding(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	email := "presence-test-3@nitc.ac.in"
	defer store.client.Del(ctx, KeyPrefix+email)

	store.Bind(ctx, email, "conn-a")
	if err := store.Clear(ctx, email, "conn-a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if connID, _ := store.Lookup(ctx, email); connID != "" {
		t.Errorf("expected binding removed, got %q", connID)
	}

	// A disconnect for the old connection must not erase a reconnect.
	store.Bind(ctx, email, "conn-b")
	if err := store.Clear(ctx, email, "conn-a"); err != nil {
		t.Fatalf("clear stale: %v", err)
	}
	if connID, _ := store.Lookup(ctx, email); connID != "conn-b" {
		t.Errorf("stale clear removed newer binding, got %q", connID)
	}
}
