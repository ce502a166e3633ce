package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitStoreSlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{TTL: time.Minute})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, "nav:client-1", base.Add(time.Duration(i)*10*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if !server.Exists(DefaultRateLimitPrefix + ":nav:client-1") {
		t.Fatalf("expected prefixed key")
	}
	if ttl := server.TTL(DefaultRateLimitPrefix + ":nav:client-1"); ttl != time.Minute {
		t.Fatalf("expected ttl refresh, got %s", ttl)
	}

	reference := base.Add(45 * time.Second)
	count, err := store.CountAttempts(ctx, "nav:client-1", 40*time.Second, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two attempts inside window, got %d", count)
	}

	if err := store.TrimWindow(ctx, "nav:client-1", 40*time.Second, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	oldest, ok, err := store.OldestAttempt(ctx, "nav:client-1", 40*time.Second, reference)
	if err != nil || !ok {
		t.Fatalf("OldestAttempt returned ok=%v err=%v", ok, err)
	}
	if !oldest.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("unexpected oldest attempt %s", oldest)
	}

	total, err := client.ZCard(ctx, DefaultRateLimitPrefix+":nav:client-1").Result()
	if err != nil || total != 2 {
		t.Fatalf("expected trimmed set of two, got %d err=%v", total, err)
	}
}

func TestRateLimitStoreRejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "test"})
	ctx := context.Background()

	if _, err := store.CountAttempts(ctx, "id", 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if err := store.TrimWindow(ctx, "id", -time.Second, time.Now()); err == nil {
		t.Fatalf("expected error for negative window")
	}
	if _, ok, err := store.OldestAttempt(ctx, "id", time.Minute, time.Now()); err != nil || ok {
		t.Fatalf("expected empty window, got ok=%v err=%v", ok, err)
	}
}
