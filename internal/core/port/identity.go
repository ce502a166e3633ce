package port

import (
	"context"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

// IdentityProvider resolves and terminates the identity bound to request credentials.
type IdentityProvider interface {
	// CurrentPrincipal returns nil without error when the credentials carry no identity.
	CurrentPrincipal(ctx context.Context, credentials string) (*domain.Principal, error)
	// OnPrincipalChanged registers a push callback; the returned func removes it.
	OnPrincipalChanged(fn func(domain.PrincipalChange)) (func(), error)
	// SignOut invalidates the session behind the credentials and returns the principal it belonged to.
	SignOut(ctx context.Context, credentials string) (*domain.Principal, error)
}
