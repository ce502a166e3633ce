package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	appLogger "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

const apiPrefix = "/api/"

// GuardResponse is returned to API callers whose request was denied.
type GuardResponse struct {
	Error    string `json:"error"`
	Reason   string `json:"reason"`
	Redirect string `json:"redirect,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Guard runs the session guard in front of routes.
type Guard struct {
	guard         *usecase.SessionGuard
	sessionCookie string
	logger        *zap.Logger
}

// NewGuard wraps a session guard for use as gin middleware.
func NewGuard(guard *usecase.SessionGuard, sessionCookie string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionCookie == "" {
		sessionCookie = "salon_session"
	}
	return &Guard{guard: guard, sessionCookie: sessionCookie, logger: logger}
}

// SessionCookie returns the name of the cookie carrying the session token.
func (g *Guard) SessionCookie() string {
	return g.sessionCookie
}

// Navigation builds the navigation for the current request and the supplied path.
func (g *Guard) Navigation(c *gin.Context, path string) usecase.Navigation {
	return usecase.Navigation{
		ClientID:    GetClientID(c),
		Path:        path,
		Credentials: g.Credentials(c),
	}
}

// Credentials extracts the session token from the Authorization header, falling back to the session cookie.
func (g *Guard) Credentials(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(g.sessionCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// Evaluate runs the guard for path on behalf of the current request.
func (g *Guard) Evaluate(c *gin.Context, path string) domain.Decision {
	return g.guard.Evaluate(c.Request.Context(), g.Navigation(c, path))
}

// SignOut ends the session of the current request.
func (g *Guard) SignOut(c *gin.Context) (string, error) {
	return g.guard.SignOut(c.Request.Context(), g.Navigation(c, c.Request.URL.RequestURI()))
}

// Redirects exposes the redirect policy of the wrapped guard.
func (g *Guard) Redirects() *usecase.RedirectPolicy {
	return g.guard.Redirects()
}

// Handler guards the request path. Pages are redirected with 302; API callers receive 401 or 403 JSON.
func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := g.Evaluate(c, c.Request.URL.RequestURI())
		c.Set(DecisionKey, decision)

		if decision.Granted() {
			if decision.Authenticated && decision.PrincipalID != "" {
				c.Set(PrincipalIDKey, decision.PrincipalID)
			}
			c.Next()
			return
		}

		appLogger.WithContext(c.Request.Context(), g.logger).Debug("navigation denied",
			zap.String("path", c.Request.URL.Path),
			zap.String("reason", string(decision.Reason)),
		)

		if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			c.AbortWithStatusJSON(deniedStatus(decision.Reason), GuardResponse{
				Error:    "navigation denied",
				Reason:   string(decision.Reason),
				Redirect: decision.Redirect,
				TraceID:  GetTraceID(c),
			})
			return
		}

		c.Redirect(http.StatusFound, decision.Redirect)
		c.Abort()
	}
}

// GetDecision returns the guard decision recorded for the request.
func GetDecision(c *gin.Context) (domain.Decision, bool) {
	value, ok := c.Get(DecisionKey)
	if !ok {
		return domain.Decision{}, false
	}
	decision, ok := value.(domain.Decision)
	return decision, ok
}

func deniedStatus(reason domain.DenyReason) int {
	switch reason {
	case domain.DenyReasonForbidden, domain.DenyReasonAlreadyAuthenticated:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
