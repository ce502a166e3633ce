package domain

import (
	"strings"
	"time"
)

// Role is the authorization claim carried by a principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalises a raw role claim. Unknown values are kept verbatim so they never match admin.
func ParseRole(value string) Role {
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// Principal is the identity resolved for a single navigation.
type Principal struct {
	ID        string
	Role      Role
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Fresh     bool
}

// TokenValid reports whether the principal's token is still inside its lifetime at the supplied moment.
func (p *Principal) TokenValid(at time.Time) bool {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return false
	}
	return p.ExpiresAt.After(at)
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// SessionKey identifies the persisted session state owned by the principal.
func (p *Principal) SessionKey() string {
	if p == nil {
		return ""
	}
	if sid := strings.TrimSpace(p.SessionID); sid != "" {
		return sid
	}
	return strings.TrimSpace(p.ID)
}

// PrincipalSnapshot is the locally cached view of the last granted principal.
type PrincipalSnapshot struct {
	ID   string `json:"id"`
	Role Role   `json:"role,omitempty"`
}

// PrincipalChange is pushed by the identity provider whenever the principal bound to a session changes.
// Principal is nil when the session was signed out.
type PrincipalChange struct {
	SessionKey  string
	PrincipalID string
	Principal   *Principal
	At          time.Time
}
