package domain

import "time"

// DefaultInactivityTimeout bounds the idle time between two authenticated navigations.
const DefaultInactivityTimeout = 8 * time.Hour

// SessionState tracks the last authenticated activity for a session.
type SessionState struct {
	LastActivity time.Time
	Timeout      time.Duration
}

// Expired reports whether the inactivity timeout elapsed at the supplied moment.
// A session without recorded activity has not started idling yet and is not expired.
func (s SessionState) Expired(at time.Time) bool {
	if s.LastActivity.IsZero() {
		return false
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return at.Sub(s.LastActivity) > timeout
}
