package presence

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestTouchAndListEditors(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	for _, author := range []string{"u-1", "u-2", "u-1"} {
		if err := store.Touch(ctx, "p-1", author); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
	}
	if err := store.Touch(ctx, "p-2", "u-3"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	editors, err := store.Editors(ctx, "p-1")
	if err != nil {
		t.Fatalf("Editors failed: %v", err)
	}
	sort.Strings(editors)
	if len(editors) != 2 || editors[0] != "u-1" || editors[1] != "u-2" {
		t.Fatalf("unexpected editors: %v", editors)
	}
}

func TestLapsedPresenceIsPruned(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()
	base := time.Now()
	store.now = func() time.Time { return base }

	if err := store.Touch(ctx, "p-1", "u-1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	store.now = func() time.Time { return base.Add(30 * time.Second) }
	if err := store.Touch(ctx, "p-1", "u-2"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(75 * time.Second) }
	editors, err := store.Editors(ctx, "p-1")
	if err != nil {
		t.Fatalf("Editors failed: %v", err)
	}
	if len(editors) != 1 || editors[0] != "u-2" {
		t.Fatalf("expected only u-2 to remain, got %v", editors)
	}

	s.FastForward(2 * time.Minute)
	if s.Exists("presence:product:p-1") {
		t.Error("expected presence key to expire")
	}
}

func TestLeave(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Touch(ctx, "p-1", "u-1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if err := store.Leave(ctx, "p-1", "u-1"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if err := store.Leave(ctx, "p-1", "missing"); err != nil {
		t.Errorf("Leave for absent author failed: %v", err)
	}
	editors, err := store.Editors(ctx, "p-1")
	if err != nil {
		t.Fatalf("Editors failed: %v", err)
	}
	if len(editors) != 0 {
		t.Fatalf("expected no editors, got %v", editors)
	}
}
