package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
)

const defaultSignOutPrefix = "salon:signed_out"

// SignOutStore records session sign-outs so that tokens issued before them stop resolving.
type SignOutStore struct {
	client *red.Client
	prefix string
}

// NewSignOutStore constructs a Redis-backed sign-out store.
func NewSignOutStore(client *red.Client, keyPrefix string) *SignOutStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSignOutPrefix
	}
	return &SignOutStore{client: client, prefix: prefix}
}

// MarkSignedOut stores the sign-out moment of the session for ttl.
func (s *SignOutStore) MarkSignedOut(ctx context.Context, sessionKey string, at time.Time, ttl time.Duration) error {
	key := s.key(sessionKey)
	if key == "" {
		return fmt.Errorf("session key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if err := s.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("redis set sign out: %w", err)
	}
	return nil
}

// SignedOutAt returns when the session was signed out, if it was.
func (s *SignOutStore) SignedOutAt(ctx context.Context, sessionKey string) (time.Time, bool, error) {
	key := s.key(sessionKey)
	if key == "" {
		return time.Time{}, false, fmt.Errorf("session key is required")
	}

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get sign out: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse sign out timestamp: %w", err)
	}
	return at, true, nil
}

func (s *SignOutStore) key(sessionKey string) string {
	trimmed := strings.TrimSpace(sessionKey)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}
