package usecase

import (
	"net/url"
	"strings"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

const (
	defaultLoginRoute     = "/login"
	defaultLandingRoute   = "/dashboard"
	defaultSignedOutRoute = "/"

	returnURLParam = "returnUrl"
)

// RedirectPolicy picks redirect targets and vets return URLs carried through the login flow.
type RedirectPolicy struct {
	classifier *RouteClassifier
	allowed    []string
	login      string
	landing    string
	signedOut  string
}

// NewRedirectPolicy builds the policy from the same route table the classifier uses.
func NewRedirectPolicy(table domain.RouteTable, classifier *RouteClassifier) *RedirectPolicy {
	if classifier == nil {
		classifier = NewRouteClassifier(table)
	}

	allowed := append(normalizeRoutes(table.Protected), normalizeRoutes(table.Admin)...)

	return &RedirectPolicy{
		classifier: classifier,
		allowed:    allowed,
		login:      routeOrDefault(table.Login, defaultLoginRoute),
		landing:    routeOrDefault(table.Landing, defaultLandingRoute),
		signedOut:  routeOrDefault(table.SignedOut, defaultSignedOutRoute),
	}
}

// Login returns the bare login route.
func (p *RedirectPolicy) Login() string { return p.login }

// Landing returns the default landing route for authenticated users.
func (p *RedirectPolicy) Landing() string { return p.landing }

// SignedOut returns the neutral route used after sign-out.
func (p *RedirectPolicy) SignedOut() string { return p.signedOut }

// LoginRedirect builds the login target for a denied navigation to fullPath.
// The return URL is attached only when fullPath is neither a public nor an auth page and passes validation.
func (p *RedirectPolicy) LoginRedirect(fullPath string) string {
	if p.classifier.Matches(fullPath, domain.RouteClassPublic, domain.RouteClassAuthOnly) {
		return p.login
	}
	if !p.ValidateReturnURL(fullPath) {
		return p.login
	}

	values := url.Values{}
	values.Set(returnURLParam, fullPath)
	return p.login + "?" + values.Encode()
}

// ResolveReturnURL returns the return URL when it is safe, otherwise the landing route.
func (p *RedirectPolicy) ResolveReturnURL(raw string) string {
	if raw == "" || !p.ValidateReturnURL(raw) {
		return p.landing
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return p.landing
	}
	return decoded
}

// ValidateReturnURL rejects absolute and protocol-relative URLs and anything outside the protected allow-list.
func (p *RedirectPolicy) ValidateReturnURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || hasUnsafeRedirectShape(raw) {
		return false
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil || hasUnsafeRedirectShape(decoded) {
		return false
	}
	if !strings.HasPrefix(decoded, "/") {
		return false
	}

	path := decoded
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	for _, route := range p.allowed {
		if routeMatches(path, route) {
			return true
		}
	}
	return false
}

func hasUnsafeRedirectShape(value string) bool {
	return strings.Contains(value, "://") ||
		strings.HasPrefix(value, "//") ||
		strings.Contains(value, `\`)
}

func routeOrDefault(route, fallback string) string {
	if strings.TrimSpace(route) == "" {
		return fallback
	}
	return NormalizePath(route)
}
