package domain

import (
	"testing"
	"time"
)

func TestSessionStateExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		state SessionState
		want  bool
	}{
		{name: "no activity yet", state: SessionState{Timeout: time.Hour}, want: false},
		{name: "recent activity", state: SessionState{LastActivity: now.Add(-time.Minute), Timeout: time.Hour}, want: false},
		{name: "exactly at timeout", state: SessionState{LastActivity: now.Add(-time.Hour), Timeout: time.Hour}, want: false},
		{name: "past timeout", state: SessionState{LastActivity: now.Add(-time.Hour - time.Second), Timeout: time.Hour}, want: true},
		{name: "default timeout", state: SessionState{LastActivity: now.Add(-9 * time.Hour)}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Expired(now); got != tc.want {
				t.Fatalf("Expired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrincipalTokenValidAndSessionKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var missing *Principal
	if missing.TokenValid(now) {
		t.Fatalf("nil principal must not be valid")
	}

	p := &Principal{ID: "u1", Role: ParseRole(" Admin "), ExpiresAt: now.Add(time.Minute)}
	if !p.TokenValid(now) {
		t.Fatalf("expected valid token")
	}
	if !p.IsAdmin() {
		t.Fatalf("expected admin role, got %q", p.Role)
	}
	if p.SessionKey() != "u1" {
		t.Fatalf("expected principal id as fallback session key, got %s", p.SessionKey())
	}

	p.SessionID = "s1"
	if p.SessionKey() != "s1" {
		t.Fatalf("expected session id as key, got %s", p.SessionKey())
	}

	p.ExpiresAt = now
	if p.TokenValid(now) {
		t.Fatalf("token expiring now must be invalid")
	}
}
