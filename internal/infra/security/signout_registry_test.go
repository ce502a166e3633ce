package security

import (
	"context"
	"testing"
	"time"
)

func TestSignOutRegistryMarksAndExpires(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registry := NewSignOutRegistry(SignOutRegistryOptions{})
	registry.WithClock(func() time.Time { return base })

	if err := registry.MarkSignedOut(ctx, "s1", base, 2*time.Minute); err != nil {
		t.Fatalf("MarkSignedOut failed: %v", err)
	}

	at, ok, err := registry.SignedOutAt(ctx, "s1")
	if err != nil {
		t.Fatalf("SignedOutAt returned error: %v", err)
	}
	if !ok || !at.Equal(base) {
		t.Fatalf("expected sign out mark at %s, got %s ok=%v", base, at, ok)
	}

	// Advance clock beyond retention.
	registry.WithClock(func() time.Time { return base.Add(3 * time.Minute) })
	_, ok, err = registry.SignedOutAt(ctx, "s1")
	if err != nil {
		t.Fatalf("SignedOutAt returned error after expiry: %v", err)
	}
	if ok {
		t.Fatalf("expected mark to expire")
	}
	if registry.size() != 0 {
		t.Fatalf("expected expired mark pruned on access")
	}
}

func TestSignOutRegistryEvictsOldestAtCapacity(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registry := NewSignOutRegistry(SignOutRegistryOptions{MaxEntries: 2})
	registry.WithClock(func() time.Time { return base })

	_ = registry.MarkSignedOut(ctx, "oldest", base.Add(-time.Hour), time.Hour)
	_ = registry.MarkSignedOut(ctx, "middle", base.Add(-time.Minute), time.Hour)
	_ = registry.MarkSignedOut(ctx, "newest", base, time.Hour)

	if _, ok, _ := registry.SignedOutAt(ctx, "oldest"); ok {
		t.Fatalf("expected oldest mark evicted at capacity")
	}
	if registry.size() != 2 {
		t.Fatalf("expected two marks, got %d", registry.size())
	}

	if err := registry.MarkSignedOut(ctx, " ", base, time.Minute); err == nil {
		t.Fatalf("expected error for empty session key")
	}
}

func TestSignOutRegistryPrunesExpiredBeforeEvicting(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	registry := NewSignOutRegistry(SignOutRegistryOptions{MaxEntries: 2})
	registry.WithClock(func() time.Time { return now })

	_ = registry.MarkSignedOut(ctx, "live-old", base.Add(-time.Hour), time.Hour)
	_ = registry.MarkSignedOut(ctx, "short", base, time.Minute)

	now = base.Add(5 * time.Minute)
	if err := registry.MarkSignedOut(ctx, "fresh", now, time.Hour); err != nil {
		t.Fatalf("MarkSignedOut failed: %v", err)
	}

	if registry.size() != 2 {
		t.Fatalf("expected two marks after pruning, got %d", registry.size())
	}
	if _, ok, _ := registry.SignedOutAt(ctx, "live-old"); !ok {
		t.Fatalf("live mark must survive while an expired one can be pruned")
	}
	if _, ok, _ := registry.SignedOutAt(ctx, "fresh"); !ok {
		t.Fatalf("expected new mark recorded")
	}
}
