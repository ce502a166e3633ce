package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	oldestErr error
	recordErr error

	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(_ context.Context, identifier string, _ time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, f.oldestErr
}

var rateLimitNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newRateLimitedRouter(t *testing.T, store *fakeRateLimitStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return rateLimitNow })

	router := gin.New()
	router.Use(EnrichContext(ClientOptions{CookieName: "salon_client"}))
	router.Use(limiter.Limit(Budget{
		Endpoint: "navigation",
		Attempts: 5,
		Window:   time.Minute,
		Scope:    ClientScope(),
	}))
	router.GET("/api/v1/navigation", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func navigationRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/navigation", nil)
	req.AddCookie(&http.Cookie{Name: "salon_client", Value: "client-1"})
	return req
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	oldest := rateLimitNow.Add(-30 * time.Second)
	store := &fakeRateLimitStore{count: 2, oldest: oldest, hasOldest: true}

	rr := httptest.NewRecorder()
	newRateLimitedRouter(t, store).ServeHTTP(rr, navigationRequest())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 || store.recordedKey != "navigation:client-1" {
		t.Fatalf("expected one attempt for the client, got %d %q", store.recordCalls, store.recordedKey)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	expectedReset := oldest.Add(time.Minute).Unix()
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(expectedReset, 10) {
		t.Fatalf("expected reset header %d, got %q", expectedReset, got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	store := &fakeRateLimitStore{count: 5, oldest: rateLimitNow.Add(-30 * time.Second), hasOldest: true}

	rr := httptest.NewRecorder()
	newRateLimitedRouter(t, store).ServeHTTP(rr, navigationRequest())

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no record attempt when blocked, got %d", store.recordCalls)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}

	var body ThrottledResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Reason != "rate_limited" || body.RetryAfter != 30 || body.Error == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{trimErr: errors.New("redis down")}

	rr := httptest.NewRecorder()
	newRateLimitedRouter(t, store).ServeHTTP(rr, navigationRequest())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rr.Code)
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no record attempt on failure, got %d", store.recordCalls)
	}
}

func TestRateLimiterPrincipalScopeSkipsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeRateLimitStore{count: 10}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(limiter.Limit(Budget{
		Endpoint: "prefetch",
		Attempts: 1,
		Window:   time.Minute,
		Scope:    PrincipalScope(),
	}))
	router.POST("/prefetch", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/prefetch", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("anonymous requests have no principal scope, got %d", rr.Code)
	}
}

func TestRateLimiterFallsBackToClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeRateLimitStore{}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return rateLimitNow })

	router := gin.New()
	router.Use(limiter.Limit(Budget{Endpoint: "signout", Attempts: 3, Window: time.Minute, Scope: ClientScope()}))
	router.POST("/signout", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/signout", nil)
	req.RemoteAddr = "203.0.113.9:4100"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 || store.recordedKey != "signout:203.0.113.9" {
		t.Fatalf("expected the attempt scoped to the client ip, got %d %q", store.recordCalls, store.recordedKey)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
}

func TestRateLimiterDisabledBudgetPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeRateLimitStore{count: 100}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(limiter.Limit(Budget{Endpoint: "signout", Attempts: 0, Window: time.Minute, Scope: ClientScope()}))
	router.POST("/signout", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/signout", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected disabled budget to pass through, got %d", rr.Code)
	}
	if store.recordCalls != 0 || rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("disabled budget must not touch the store or headers")
	}
}
