package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
)

const (
	lastActivityKeyPrefix = "last_activity"
	principalKeyPrefix    = "principal"
)

// ErrSessionKeyRequired is returned when a session operation is attempted without a session key.
var ErrSessionKeyRequired = errors.New("session key is required")

// SessionTracker persists the inactivity clock and principal snapshot of each session.
type SessionTracker struct {
	store   port.KeyValueStore
	timeout time.Duration
	now     func() time.Time
}

// NewSessionTracker constructs a tracker; a non-positive timeout falls back to the 8h default.
func NewSessionTracker(store port.KeyValueStore, timeout time.Duration) *SessionTracker {
	if timeout <= 0 {
		timeout = domain.DefaultInactivityTimeout
	}
	return &SessionTracker{
		store:   store,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the tracker clock for deterministic tests.
func (t *SessionTracker) WithClock(clock func() time.Time) *SessionTracker {
	if clock != nil {
		t.now = clock
	}
	return t
}

// Timeout returns the configured inactivity timeout.
func (t *SessionTracker) Timeout() time.Duration {
	return t.timeout
}

// State loads the session state for the key.
func (t *SessionTracker) State(ctx context.Context, sessionKey string) (domain.SessionState, error) {
	state := domain.SessionState{Timeout: t.timeout}

	key, err := scopedKey(lastActivityKeyPrefix, sessionKey)
	if err != nil {
		return state, err
	}

	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return state, fmt.Errorf("load last activity: %w", err)
	}
	if !ok {
		return state, nil
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return state, fmt.Errorf("parse last activity: %w", err)
	}
	state.LastActivity = at
	return state, nil
}

// Touch records activity now and refreshes the cached principal snapshot.
func (t *SessionTracker) Touch(ctx context.Context, principal *domain.Principal) error {
	sessionKey := principal.SessionKey()

	activityKey, err := scopedKey(lastActivityKeyPrefix, sessionKey)
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, activityKey, t.now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store last activity: %w", err)
	}

	snapshot, err := json.Marshal(domain.PrincipalSnapshot{ID: principal.ID, Role: principal.Role})
	if err != nil {
		return fmt.Errorf("marshal principal snapshot: %w", err)
	}
	principalKey, _ := scopedKey(principalKeyPrefix, sessionKey)
	if err := t.store.Set(ctx, principalKey, string(snapshot)); err != nil {
		return fmt.Errorf("store principal snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the principal cached by the last touch, or nil when none is stored.
func (t *SessionTracker) Snapshot(ctx context.Context, sessionKey string) (*domain.PrincipalSnapshot, error) {
	key, err := scopedKey(principalKeyPrefix, sessionKey)
	if err != nil {
		return nil, err
	}

	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load principal snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var snapshot domain.PrincipalSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("decode principal snapshot: %w", err)
	}
	return &snapshot, nil
}

// Clear removes everything persisted for the session. Clearing an unknown session is a no-op.
func (t *SessionTracker) Clear(ctx context.Context, sessionKey string) error {
	var errs []error
	for _, prefix := range []string{lastActivityKeyPrefix, principalKeyPrefix} {
		key, err := scopedKey(prefix, sessionKey)
		if err != nil {
			return err
		}
		if err := t.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", prefix, err))
		}
	}
	return errors.Join(errs...)
}

func scopedKey(prefix, sessionKey string) (string, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return "", ErrSessionKeyRequired
	}
	return prefix + ":" + sessionKey, nil
}
