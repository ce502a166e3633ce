package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SignOutRegistryOptions controls in-memory registry behaviour.
type SignOutRegistryOptions struct {
	MaxEntries int
}

type signOutEntry struct {
	SignedOutAt time.Time
	ExpiresAt   time.Time
}

// SignOutRegistry is an in-memory SignOutStore used when no shared store is configured.
type SignOutRegistry struct {
	mu         sync.RWMutex
	entries    map[string]signOutEntry
	maxEntries int
	now        func() time.Time
}

// NewSignOutRegistry constructs an empty registry.
func NewSignOutRegistry(opts SignOutRegistryOptions) *SignOutRegistry {
	return &SignOutRegistry{
		entries:    make(map[string]signOutEntry),
		maxEntries: opts.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic testing.
func (r *SignOutRegistry) WithClock(clock func() time.Time) *SignOutRegistry {
	if clock != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.now = clock
	}
	return r
}

// MarkSignedOut records that the session ended at the supplied moment. The mark is kept for ttl.
func (r *SignOutRegistry) MarkSignedOut(_ context.Context, sessionKey string, at time.Time, ttl time.Duration) error {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return fmt.Errorf("session key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := signOutEntry{SignedOutAt: at.UTC()}
	if ttl > 0 {
		entry.ExpiresAt = r.now().Add(ttl)
	}
	if _, exists := r.entries[sessionKey]; !exists && r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		// Expired marks go first; live ones are evicted oldest first only when that is not enough.
		r.pruneLocked(r.now())
		if len(r.entries) >= r.maxEntries {
			r.evictOldestLocked(len(r.entries) - r.maxEntries + 1)
		}
	}
	r.entries[sessionKey] = entry
	return nil
}

// SignedOutAt returns the sign-out moment of the session, if one is still recorded.
func (r *SignOutRegistry) SignedOutAt(_ context.Context, sessionKey string) (time.Time, bool, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return time.Time{}, false, fmt.Errorf("session key is required")
	}

	r.mu.RLock()
	entry, ok := r.entries[sessionKey]
	now := r.now()
	r.mu.RUnlock()
	if !ok {
		return time.Time{}, false, nil
	}
	if !entry.ExpiresAt.IsZero() && !entry.ExpiresAt.After(now) {
		// Expired entries are lazily pruned on access.
		r.mu.Lock()
		delete(r.entries, sessionKey)
		r.mu.Unlock()
		return time.Time{}, false, nil
	}
	return entry.SignedOutAt, true, nil
}

func (r *SignOutRegistry) pruneLocked(now time.Time) {
	for key, entry := range r.entries {
		if !entry.ExpiresAt.IsZero() && !entry.ExpiresAt.After(now) {
			delete(r.entries, key)
		}
	}
}

func (r *SignOutRegistry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *SignOutRegistry) evictOldestLocked(count int) {
	for ; count > 0; count-- {
		var (
			oldestKey string
			oldestAt  time.Time
		)
		for key, entry := range r.entries {
			if oldestKey == "" || entry.SignedOutAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.SignedOutAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(r.entries, oldestKey)
	}
}
