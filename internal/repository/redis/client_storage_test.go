package redis

import (
	"context"
	"testing"
	"time"
)

func TestClientStorage_SetGetRemove(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewClientStorage(client, "salon:client:test", time.Hour)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "last_activity:s1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "last_activity:s1", "2026-03-01T10:00:00Z"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	value, ok, err := store.Get(ctx, "last_activity:s1")
	if err != nil || !ok || value != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected value %q ok=%v err=%v", value, ok, err)
	}

	if ttl := server.TTL("salon:client:test:last_activity:s1"); ttl != time.Hour {
		t.Fatalf("expected retention ttl, got %s", ttl)
	}

	if err := store.Remove(ctx, "last_activity:s1"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := store.Remove(ctx, "last_activity:s1"); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
	if server.Exists("salon:client:test:last_activity:s1") {
		t.Fatalf("expected key removed")
	}
}

func TestClientStorage_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewClientStorage(client, "", 0)

	if err := store.Set(context.Background(), " ", "v"); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, _, err := store.Get(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := store.Remove(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestClientStorage_ConnectionFailure(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewClientStorage(client, "", 0)
	server.Close()

	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error when redis is unavailable")
	}
}
