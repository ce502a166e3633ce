package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
)

const defaultResolveTimeout = 10 * time.Second

// ErrIdentityResolutionTimeout is reported when the identity provider does not answer in time.
var ErrIdentityResolutionTimeout = errors.New("identity resolution timed out")

// Navigation describes a single navigation attempt.
type Navigation struct {
	// ClientID identifies the browser issuing the navigation; the latest navigation per client wins.
	ClientID string
	// Path is the full requested path including its query string.
	Path        string
	Credentials string
}

// SessionGuardDependencies groups collaborators of the guard.
type SessionGuardDependencies struct {
	Identity       port.IdentityProvider
	Tracker        *SessionTracker
	Routes         domain.RouteTable
	Events         port.EventPublisher
	Metrics        port.GuardMetrics
	Logger         *zap.Logger
	ResolveTimeout time.Duration
}

// SessionGuard decides whether navigations may proceed.
type SessionGuard struct {
	identity       port.IdentityProvider
	tracker        *SessionTracker
	classifier     *RouteClassifier
	redirects      *RedirectPolicy
	events         port.EventPublisher
	metrics        port.GuardMetrics
	logger         *zap.Logger
	tracer         trace.Tracer
	resolveTimeout time.Duration
	now            func() time.Time

	generation uint64
	mu         sync.Mutex
	latest     map[string]uint64
}

// NewSessionGuard wires the guard from its dependencies.
func NewSessionGuard(deps SessionGuardDependencies) *SessionGuard {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := deps.ResolveTimeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	classifier := NewRouteClassifier(deps.Routes)

	return &SessionGuard{
		identity:       deps.Identity,
		tracker:        deps.Tracker,
		classifier:     classifier,
		redirects:      NewRedirectPolicy(deps.Routes, classifier),
		events:         deps.Events,
		metrics:        deps.Metrics,
		logger:         log,
		tracer:         otel.Tracer("salon/usecase/session_guard"),
		resolveTimeout: timeout,
		now:            func() time.Time { return time.Now().UTC() },
		latest:         make(map[string]uint64),
	}
}

// WithClock overrides the guard clock for deterministic tests.
func (g *SessionGuard) WithClock(clock func() time.Time) *SessionGuard {
	if clock != nil {
		g.now = clock
	}
	return g
}

// Redirects exposes the redirect policy used by the guard.
func (g *SessionGuard) Redirects() *RedirectPolicy {
	return g.redirects
}

// Classify exposes route classification.
func (g *SessionGuard) Classify(path string) domain.RouteClass {
	return g.classifier.Classify(path)
}

// ValidateReturnURL reports whether raw is a safe post-login destination.
func (g *SessionGuard) ValidateReturnURL(raw string) bool {
	return g.redirects.ValidateReturnURL(raw)
}

// Evaluate runs identity resolution, session validation, classification and the decision table.
// It never returns an error: failures resolve to the safe default for the route.
func (g *SessionGuard) Evaluate(ctx context.Context, nav Navigation) domain.Decision {
	ctx, span := g.tracer.Start(ctx, "session_guard.evaluate")
	defer span.End()

	clientKey := nav.ClientID
	gen := g.begin(clientKey)
	defer g.finish(clientKey, gen)

	decision, principal, err := g.decideSafely(ctx, nav)
	if err != nil {
		g.logger.Error("guard evaluation failed, applying safe default",
			zap.String("path", nav.Path),
			zap.String("client", logger.MaskString(clientKey)),
			zap.Error(err),
		)
		decision = g.fallback(nav.Path)
	}

	g.applySideEffects(ctx, nav, gen, &decision, principal)

	span.SetAttributes(
		attribute.String("guard.outcome", string(decision.Outcome)),
		attribute.String("guard.reason", string(decision.Reason)),
		attribute.String("guard.class", decision.Class.String()),
	)
	if g.metrics != nil {
		g.metrics.ObserveDecision(decision)
	}
	return decision
}

// SignOut invalidates the identity session, clears its persisted state and returns the neutral route.
// Calling it without an active session is a no-op that still returns the neutral route.
func (g *SessionGuard) SignOut(ctx context.Context, nav Navigation) (string, error) {
	var errs []error

	var principal *domain.Principal
	if g.identity != nil {
		signedOut, err := g.identity.SignOut(ctx, nav.Credentials)
		if err != nil {
			errs = append(errs, fmt.Errorf("identity sign out: %w", err))
		}
		principal = signedOut
	}

	g.forget(nav.ClientID)

	if principal == nil {
		return g.redirects.SignedOut(), errors.Join(errs...)
	}

	role := principal.Role
	if g.tracker != nil {
		if snapshot, err := g.tracker.Snapshot(ctx, principal.SessionKey()); err == nil && snapshot != nil && snapshot.Role != "" {
			role = snapshot.Role
		}
		if err := g.tracker.Clear(ctx, principal.SessionKey()); err != nil {
			errs = append(errs, fmt.Errorf("clear session state: %w", err))
		}
	}

	if g.events != nil {
		event := domain.SessionSignedOutEvent{
			EventID:     uuid.NewString(),
			PrincipalID: principal.ID,
			SessionKey:  principal.SessionKey(),
			Role:        role,
			ClientID:    nav.ClientID,
			SignedOutAt: g.now(),
		}
		if err := g.events.PublishSessionSignedOut(ctx, event); err != nil {
			g.logger.Warn("publish session signed out event failed", zap.Error(err))
		}
	}

	return g.redirects.SignedOut(), errors.Join(errs...)
}

func (g *SessionGuard) decideSafely(ctx context.Context, nav Navigation) (decision domain.Decision, principal *domain.Principal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("guard panicked: %v", r)
		}
	}()
	decision, principal = g.decide(ctx, nav)
	return decision, principal, nil
}

func (g *SessionGuard) decide(ctx context.Context, nav Navigation) (domain.Decision, *domain.Principal) {
	principal := g.resolvePrincipal(ctx, nav.Credentials)

	authenticated, reason := g.authenticate(ctx, principal)

	class := g.classifier.Classify(nav.Path)
	decision := domain.Decision{
		Class:         class,
		Authenticated: authenticated,
	}
	if principal != nil {
		decision.PrincipalID = principal.ID
		decision.Role = principal.Role
	}

	switch class {
	case domain.RouteClassPublic:
		decision.Outcome = domain.OutcomeGranted
	case domain.RouteClassAuthOnly:
		if authenticated {
			return deny(decision, domain.DenyReasonAlreadyAuthenticated, g.redirects.Landing()), principal
		}
		decision.Outcome = domain.OutcomeGranted
	default:
		if !authenticated {
			return deny(decision, reason, g.redirects.LoginRedirect(nav.Path)), principal
		}
		if class == domain.RouteClassAdmin && !principal.IsAdmin() {
			return deny(decision, domain.DenyReasonForbidden, g.redirects.Landing()), principal
		}
		decision.Outcome = domain.OutcomeGranted
	}

	return decision, principal
}

// authenticate combines principal presence, token lifetime and the inactivity timeout.
func (g *SessionGuard) authenticate(ctx context.Context, principal *domain.Principal) (bool, domain.DenyReason) {
	if principal == nil {
		return false, domain.DenyReasonUnauthenticated
	}
	now := g.now()
	if !principal.TokenValid(now) {
		return false, domain.DenyReasonTokenExpired
	}
	if g.tracker == nil {
		return true, domain.DenyReasonNone
	}

	state, err := g.tracker.State(ctx, principal.SessionKey())
	if err != nil {
		g.logger.Warn("session state unavailable, treating as unauthenticated", zap.Error(err))
		return false, domain.DenyReasonUnauthenticated
	}
	if state.Expired(now) {
		return false, domain.DenyReasonSessionExpired
	}
	return true, domain.DenyReasonNone
}

type resolution struct {
	principal *domain.Principal
	err       error
}

// resolvePrincipal asks the identity provider under a timeout; any failure yields no principal.
func (g *SessionGuard) resolvePrincipal(ctx context.Context, credentials string) *domain.Principal {
	if g.identity == nil {
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, g.resolveTimeout)
	defer cancel()

	done := make(chan resolution, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- resolution{err: fmt.Errorf("identity provider panicked: %v", r)}
			}
		}()
		principal, err := g.identity.CurrentPrincipal(resolveCtx, credentials)
		done <- resolution{principal: principal, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			g.logger.Warn("identity resolution failed", zap.Error(res.err))
			return nil
		}
		return res.principal
	case <-resolveCtx.Done():
		g.logger.Warn("identity resolution failed",
			zap.Duration("timeout", g.resolveTimeout),
			zap.Error(ErrIdentityResolutionTimeout),
		)
		return nil
	}
}

// applySideEffects touches the session on authenticated grants. An idle session is ended at the identity
// provider so its token stops resolving; its activity record is only dropped once that succeeded, otherwise
// the expired timestamp keeps denying the token.
func (g *SessionGuard) applySideEffects(ctx context.Context, nav Navigation, gen uint64, decision *domain.Decision, principal *domain.Principal) {
	if g.tracker == nil || principal == nil {
		return
	}

	touch := decision.Granted() && decision.Authenticated
	expire := decision.Reason == domain.DenyReasonSessionExpired
	if !touch && !expire {
		return
	}

	if !g.isLatest(nav.ClientID, gen) {
		decision.Superseded = true
		return
	}

	if touch {
		if err := g.tracker.Touch(ctx, principal); err != nil {
			g.logger.Warn("touch session failed", zap.Error(err))
		}
		return
	}

	if g.identity == nil {
		return
	}
	if _, err := g.identity.SignOut(ctx, nav.Credentials); err != nil {
		g.logger.Warn("end idle session failed, keeping its activity record",
			zap.String("principal_id", principal.ID),
			zap.Error(err),
		)
		return
	}
	if err := g.tracker.Clear(ctx, principal.SessionKey()); err != nil {
		g.logger.Warn("clear expired session failed", zap.Error(err))
	}
}

func (g *SessionGuard) fallback(path string) domain.Decision {
	class := g.classifier.Classify(path)
	if class == domain.RouteClassPublic {
		return domain.Decision{Outcome: domain.OutcomeGranted, Class: class}
	}
	return deny(domain.Decision{Class: class}, domain.DenyReasonGuardFailure, g.redirects.LoginRedirect(path))
}

func (g *SessionGuard) begin(clientKey string) uint64 {
	gen := atomic.AddUint64(&g.generation, 1)
	if clientKey == "" {
		return gen
	}
	g.mu.Lock()
	g.latest[clientKey] = gen
	g.mu.Unlock()
	return gen
}

func (g *SessionGuard) isLatest(clientKey string, gen uint64) bool {
	if clientKey == "" {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[clientKey] == gen
}

func (g *SessionGuard) finish(clientKey string, gen uint64) {
	if clientKey == "" {
		return
	}
	g.mu.Lock()
	if g.latest[clientKey] == gen {
		delete(g.latest, clientKey)
	}
	g.mu.Unlock()
}

func (g *SessionGuard) forget(clientKey string) {
	if clientKey == "" {
		return
	}
	g.mu.Lock()
	delete(g.latest, clientKey)
	g.mu.Unlock()
}

func deny(decision domain.Decision, reason domain.DenyReason, redirect string) domain.Decision {
	decision.Outcome = domain.OutcomeDenied
	decision.Reason = reason
	decision.Redirect = redirect
	return decision
}
