package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	appLogger "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
)

// PrincipalChangedTopic is the bus topic carrying domain.PrincipalChange values.
const PrincipalChangedTopic = "identity:principal_changed"

const (
	defaultSignOutRetention = time.Hour
	maxTrackedSessions      = 50000
)

// SignOutStore remembers when sessions were signed out so that their tokens stop resolving.
type SignOutStore interface {
	MarkSignedOut(ctx context.Context, sessionKey string, at time.Time, ttl time.Duration) error
	SignedOutAt(ctx context.Context, sessionKey string) (time.Time, bool, error)
}

// TokenIdentityProviderOptions configures the provider.
type TokenIdentityProviderOptions struct {
	// SignOutRetention should cover the longest token lifetime.
	SignOutRetention time.Duration
}

// TokenIdentityProvider resolves principals from bearer session tokens.
type TokenIdentityProvider struct {
	decoder   *ClaimsDecoder
	signOuts  SignOutStore
	bus       evbus.Bus
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	sessions  map[string]string
	listeners map[string]func(domain.PrincipalChange)
}

// NewTokenIdentityProvider wires the provider. A nil bus gets a private one.
func NewTokenIdentityProvider(decoder *ClaimsDecoder, signOuts SignOutStore, bus evbus.Bus, opts TokenIdentityProviderOptions, logger *zap.Logger) (*TokenIdentityProvider, error) {
	if decoder == nil {
		return nil, fmt.Errorf("claims decoder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = evbus.New()
	}
	if signOuts == nil {
		signOuts = NewSignOutRegistry(SignOutRegistryOptions{MaxEntries: maxTrackedSessions})
	}
	retention := opts.SignOutRetention
	if retention <= 0 {
		retention = defaultSignOutRetention
	}

	p := &TokenIdentityProvider{
		decoder:   decoder,
		signOuts:  signOuts,
		bus:       bus,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		sessions:  make(map[string]string),
		listeners: make(map[string]func(domain.PrincipalChange)),
	}
	if err := bus.Subscribe(PrincipalChangedTopic, p.dispatch); err != nil {
		return nil, fmt.Errorf("subscribe principal changes: %w", err)
	}
	return p, nil
}

// WithClock overrides the provider clock for deterministic tests.
func (p *TokenIdentityProvider) WithClock(clock func() time.Time) *TokenIdentityProvider {
	if clock != nil {
		p.now = clock
	}
	return p
}

// CurrentPrincipal returns the principal of the token, nil for absent or signed out tokens.
// Expired tokens still resolve so that the caller can tell expiry from absence.
func (p *TokenIdentityProvider) CurrentPrincipal(ctx context.Context, credentials string) (*domain.Principal, error) {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return nil, nil
	}

	claims, err := p.decoder.Decode(credentials)
	if err != nil && !(errors.Is(err, ErrTokenExpired) && claims != nil) {
		return nil, err
	}
	principal := claims.Principal()

	signedOutAt, ok, err := p.signOuts.SignedOutAt(ctx, principal.SessionKey())
	if err != nil {
		return nil, fmt.Errorf("load sign out mark: %w", err)
	}
	if ok && !principal.IssuedAt.After(signedOutAt) {
		return nil, nil
	}

	if principal.TokenValid(p.now()) {
		principal.Fresh = p.track(principal)
	}
	return principal, nil
}

// OnPrincipalChanged registers fn for principal changes and returns its unsubscribe function.
func (p *TokenIdentityProvider) OnPrincipalChanged(fn func(domain.PrincipalChange)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("listener is required")
	}
	id := uuid.NewString()

	p.mu.Lock()
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}, nil
}

// SignOut marks the session behind credentials as signed out and returns its principal.
// Unknown, malformed or already signed out credentials yield nil without error.
func (p *TokenIdentityProvider) SignOut(ctx context.Context, credentials string) (*domain.Principal, error) {
	principal, err := p.CurrentPrincipal(ctx, credentials)
	if err != nil || principal == nil {
		if err != nil {
			p.logger.Debug("sign out without resolvable session",
				zap.String("token", appLogger.MaskToken(credentials)),
				zap.Error(err),
			)
		}
		return nil, nil
	}

	at := p.now()
	if err := p.signOuts.MarkSignedOut(ctx, principal.SessionKey(), at, p.retention); err != nil {
		return nil, fmt.Errorf("mark signed out: %w", err)
	}

	p.mu.Lock()
	delete(p.sessions, principal.SessionKey())
	p.mu.Unlock()

	p.bus.Publish(PrincipalChangedTopic, domain.PrincipalChange{
		SessionKey:  principal.SessionKey(),
		PrincipalID: principal.ID,
		At:          at,
	})
	return principal, nil
}

// track remembers the principal bound to its session and announces changes. It reports whether
// the session was unknown before.
func (p *TokenIdentityProvider) track(principal *domain.Principal) bool {
	key := principal.SessionKey()

	p.mu.Lock()
	previous, known := p.sessions[key]
	if !known && len(p.sessions) >= maxTrackedSessions {
		p.sessions = make(map[string]string)
	}
	p.sessions[key] = principal.ID
	p.mu.Unlock()

	if known && previous == principal.ID {
		return false
	}

	copied := *principal
	p.bus.Publish(PrincipalChangedTopic, domain.PrincipalChange{
		SessionKey:  key,
		PrincipalID: principal.ID,
		Principal:   &copied,
		At:          p.now(),
	})
	return !known
}

func (p *TokenIdentityProvider) dispatch(change domain.PrincipalChange) {
	p.mu.Lock()
	listeners := make([]func(domain.PrincipalChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}
