package authkit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRevocationStoreLifecycle(t *testing.T) {
	store := NewMemoryRevocationStore()
	current := time.Unix(1700000000, 0)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	exists, err := store.Exists(ctx, "blacklist:missing")
	if err != nil || exists {
		t.Fatalf("expected missing key, got exists=%v err=%v", exists, err)
	}

	if err := store.Set(ctx, "blacklist:token", "blacklisted", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	exists, err = store.Exists(ctx, "blacklist:token")
	if err != nil || !exists {
		t.Fatalf("expected key to exist, got exists=%v err=%v", exists, err)
	}
	expiresAt, ok := store.ExpiresAt("blacklist:token")
	if !ok || !expiresAt.Equal(current.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	current = current.Add(time.Minute)
	exists, err = store.Exists(ctx, "blacklist:token")
	if err != nil || exists {
		t.Fatalf("expected key to expire, got exists=%v err=%v", exists, err)
	}
}

func TestMemoryRevocationStoreDelete(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()

	if err := store.Set(ctx, "key", "value", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if exists, _ := store.Exists(ctx, "key"); exists {
		t.Fatalf("expected key to be deleted")
	}
}
