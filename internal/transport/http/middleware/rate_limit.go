package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	appLogger "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
)

const throttledReason = "rate_limited"

// Scope resolves who an endpoint budget is counted against. It reports false when the request has no such caller.
type Scope func(*gin.Context) (string, bool)

// Budget is a sliding-window allowance for one endpoint group, e.g. navigation checks per browser client.
type Budget struct {
	Endpoint string
	Attempts int
	Window   time.Duration
	Scope    Scope
}

func (b Budget) enabled() bool {
	return b.Scope != nil && b.Attempts > 0 && b.Window > 0
}

// ThrottledResponse is returned to callers that used up their budget.
type ThrottledResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter enforces endpoint budgets against a shared attempt store.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// usage is the state of one budget after the current request was counted.
type usage struct {
	allowed   bool
	remaining int
	reset     time.Time
	retry     time.Duration
}

// NewRateLimiter builds a limiter over store.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the limiter clock for deterministic tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientScope counts against the browser client id, falling back to the client IP.
func ClientScope() Scope {
	return func(c *gin.Context) (string, bool) {
		if id := GetClientID(c); id != "" {
			return id, true
		}
		if ip := c.ClientIP(); ip != "" {
			return ip, true
		}
		return "", false
	}
}

// PrincipalScope counts against the principal of a granted navigation. Anonymous requests are not counted.
func PrincipalScope() Scope {
	return func(c *gin.Context) (string, bool) {
		return GetPrincipalID(c)
	}
}

// Limit returns middleware charging every request to budget. Store failures let the request through.
func (rl *RateLimiter) Limit(budget Budget) gin.HandlerFunc {
	if !budget.enabled() || rl.store == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		caller, ok := budget.Scope(c)
		if !ok || caller == "" {
			c.Next()
			return
		}

		key := budget.Endpoint + ":" + caller
		use, err := rl.charge(c, budget, key)
		if err != nil {
			appLogger.WithContext(c.Request.Context(), rl.logger).Warn("rate limit check failed",
				zap.String("endpoint", budget.Endpoint),
				zap.String("caller", appLogger.MaskString(caller)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		writeBudgetHeaders(c, budget, use)
		if !use.allowed {
			retrySeconds := ceilSeconds(use.retry)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ThrottledResponse{
				Error:      fmt.Sprintf("too many requests, retry in %d seconds", retrySeconds),
				Reason:     throttledReason,
				RetryAfter: retrySeconds,
				TraceID:    GetTraceID(c),
			})
			return
		}
		c.Next()
	}
}

// charge counts the request against the window ending now. A caller already at the limit is not recorded again.
func (rl *RateLimiter) charge(c *gin.Context, budget Budget, key string) (usage, error) {
	ctx := c.Request.Context()
	now := rl.now()

	if err := rl.store.TrimWindow(ctx, key, budget.Window, now); err != nil {
		return usage{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, budget.Window, now)
	if err != nil {
		return usage{}, err
	}
	oldest, seen, err := rl.store.OldestAttempt(ctx, key, budget.Window, now)
	if err != nil {
		return usage{}, err
	}

	use := usage{reset: now.Add(budget.Window)}
	if seen {
		use.reset = oldest.Add(budget.Window)
	}
	use.retry = max(use.reset.Sub(now), 0)

	if count >= budget.Attempts {
		return use, nil
	}
	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return usage{}, err
	}
	use.allowed = true
	use.remaining = max(budget.Attempts-count-1, 0)
	return use, nil
}

func writeBudgetHeaders(c *gin.Context, budget Budget, use usage) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(budget.Attempts))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(use.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(use.reset.Unix(), 10))
	if !use.allowed {
		headers.Set("Retry-After", strconv.Itoa(ceilSeconds(use.retry)))
	}
}

func ceilSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
