package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

var (
	// ErrTokenInvalid indicates a token that is well formed but not trustworthy.
	ErrTokenInvalid = errors.New("jwt: session token invalid")
	// ErrTokenExpired indicates a trustworthy token past its expiry. Decode still returns its claims.
	ErrTokenExpired = errors.New("jwt: session token expired")
)

// MalformedTokenError reports a token that cannot be decoded or lacks a required claim.
type MalformedTokenError struct {
	Field string
	Err   error
}

func (e *MalformedTokenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("jwt: malformed token: %s", e.Field)
	}
	return fmt.Sprintf("jwt: malformed token: %s: %v", e.Field, e.Err)
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }

var errClaimMissing = errors.New("claim missing")

// SessionClaims are the claims carried by a salon session token.
type SessionClaims struct {
	UserID    string `json:"user_id,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID returns the user id claim, falling back to the subject.
func (c *SessionClaims) PrincipalID() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}

// Principal converts the claims into the principal seen by the guard.
func (c *SessionClaims) Principal() *domain.Principal {
	role := domain.ParseRole(c.Role)
	if role == "" {
		role = domain.RoleUser
	}
	principal := &domain.Principal{
		ID:        c.PrincipalID(),
		Role:      role,
		SessionID: strings.TrimSpace(c.SessionID),
	}
	if c.IssuedAt != nil {
		principal.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		principal.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return principal
}

// VerificationKeys resolves RSA public keys by kid.
type VerificationKeys interface {
	VerificationKey(kid string) (*rsa.PublicKey, error)
}

// ClaimsDecoder verifies RS256 session tokens and decodes their claims.
type ClaimsDecoder struct {
	keys     VerificationKeys
	issuer   string
	audience string
	now      func() time.Time
}

// NewClaimsDecoder constructs a decoder. Empty issuer or audience disables that check.
func NewClaimsDecoder(keys VerificationKeys, issuer, audience string) *ClaimsDecoder {
	return &ClaimsDecoder{
		keys:     keys,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the decoder clock for deterministic tests.
func (d *ClaimsDecoder) WithClock(clock func() time.Time) *ClaimsDecoder {
	if clock != nil {
		d.now = clock
	}
	return d
}

// Decode verifies the signature and required claims of token.
// An expired token yields its claims together with ErrTokenExpired.
func (d *ClaimsDecoder) Decode(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &MalformedTokenError{Field: "token", Err: errors.New("empty")}
	}
	if d.keys == nil {
		return nil, fmt.Errorf("jwt: verification keys not configured")
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return d.keys.VerificationKey(strings.TrimSpace(kid))
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, &MalformedTokenError{Field: "token", Err: err}
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if parsed == nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	switch {
	case claims.PrincipalID() == "":
		return nil, &MalformedTokenError{Field: "user_id", Err: errClaimMissing}
	case claims.ExpiresAt == nil:
		return nil, &MalformedTokenError{Field: "exp", Err: errClaimMissing}
	case claims.IssuedAt == nil:
		return nil, &MalformedTokenError{Field: "iat", Err: errClaimMissing}
	}

	if d.issuer != "" && claims.Issuer != d.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	if d.audience != "" && !slices.Contains([]string(claims.Audience), d.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	now := d.now()
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
	}
	if !claims.ExpiresAt.Time.After(now) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

// SignSessionClaims signs claims with RS256 under kid.
func SignSessionClaims(key *rsa.PrivateKey, kid string, claims *SessionClaims) (string, error) {
	if key == nil {
		return "", fmt.Errorf("jwt: signing key required")
	}
	if claims == nil {
		return "", fmt.Errorf("jwt: session claims required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid = strings.TrimSpace(kid); kid != "" {
		token.Header["kid"] = kid
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}
