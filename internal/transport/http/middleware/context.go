package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// ClientIDKey is the context key for the browser client id
	ClientIDKey = "client_id"
	// PrincipalIDKey is the context key for the principal of a granted navigation
	PrincipalIDKey = "principal_id"
	// DecisionKey is the context key for the guard decision
	DecisionKey = "guard_decision"

	requestContextKey = "request_context"
	clientCookieTTL   = 365 * 24 * 60 * 60
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	ClientID  string
	IP        string
	UserAgent string
}

// ClientOptions configures the client identity cookie.
type ClientOptions struct {
	CookieName string
	Secure     bool
}

// EnrichContext adds trace ID, client ID and request context to each request.
// Browsers without a client cookie get a new random id.
func EnrichContext(opts ClientOptions) gin.HandlerFunc {
	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = "salon_client"
	}

	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		clientID, err := c.Cookie(cookieName)
		clientID = strings.TrimSpace(clientID)
		if err != nil || clientID == "" {
			clientID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, clientID, clientCookieTTL, "/", "", opts.Secure, true)
		}
		c.Set(ClientIDKey, clientID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			ClientID:  clientID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetClientID retrieves the client ID from the context
func GetClientID(c *gin.Context) string {
	return c.GetString(ClientIDKey)
}

// GetPrincipalID returns the principal id of a granted navigation, if any.
func GetPrincipalID(c *gin.Context) (string, bool) {
	id := c.GetString(PrincipalIDKey)
	return id, id != ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
