package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

const (
	defaultClientStoragePrefix    = "salon:client"
	defaultClientStorageRetention = 30 * 24 * time.Hour
)

// ClientStorage persists per-session guard state in Redis. Every write refreshes the retention window.
type ClientStorage struct {
	client    *red.Client
	prefix    string
	retention time.Duration
}

// NewClientStorage constructs the store. A non-positive retention falls back to 30 days.
func NewClientStorage(client *red.Client, keyPrefix string, retention time.Duration) *ClientStorage {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultClientStoragePrefix
	}
	if retention <= 0 {
		retention = defaultClientStorageRetention
	}
	return &ClientStorage{client: client, prefix: prefix, retention: retention}
}

// Get returns the stored value and whether it exists.
func (s *ClientStorage) Get(ctx context.Context, key string) (string, bool, error) {
	fullKey := s.key(key)
	if fullKey == "" {
		return "", false, fmt.Errorf("storage key is required")
	}

	value, err := s.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get client storage: %w", err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *ClientStorage) Set(ctx context.Context, key string, value string) error {
	fullKey := s.key(key)
	if fullKey == "" {
		return fmt.Errorf("storage key is required")
	}
	if err := s.client.Set(ctx, fullKey, value, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set client storage: %w", err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *ClientStorage) Remove(ctx context.Context, key string) error {
	fullKey := s.key(key)
	if fullKey == "" {
		return fmt.Errorf("storage key is required")
	}
	if err := s.client.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("redis delete client storage: %w", err)
	}
	return nil
}

func (s *ClientStorage) key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}

var _ port.KeyValueStore = (*ClientStorage)(nil)
