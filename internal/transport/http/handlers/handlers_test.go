package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

var handlerNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type getCall struct {
	collection  string
	start, end  time.Time
	principalID string
	useCache    bool
}

type prefetchCall struct {
	base        time.Time
	days        int
	principalID string
}

type fakeQueries struct {
	mu           sync.Mutex
	records      []domain.Appointment
	err          error
	subscribeErr error
	subErr       error
	gets         []getCall
	prefetches   []prefetchCall
	clears       int
	subscribed   chan func([]domain.Appointment)
	unsubscribed chan string
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		subscribed:   make(chan func([]domain.Appointment), 1),
		unsubscribed: make(chan string, 1),
	}
}

func (f *fakeQueries) Collection() string { return "reservations" }

func (f *fakeQueries) Get(_ context.Context, collection string, start, end time.Time, principalID string, useCache bool) ([]domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, getCall{collection, start, end, principalID, useCache})
	return f.records, f.err
}

func (f *fakeQueries) Prefetch(_ context.Context, base time.Time, days int, principalID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetches = append(f.prefetches, prefetchCall{base, days, principalID})
}

func (f *fakeQueries) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeQueries) Subscribe(_ context.Context, _, _ time.Time, _ string, onUpdate func([]domain.Appointment)) (string, error) {
	if f.subscribeErr != nil {
		return "", f.subscribeErr
	}
	f.subscribed <- onUpdate
	return "sub-1", nil
}

func (f *fakeQueries) Unsubscribe(id string) {
	f.unsubscribed <- id
}

func (f *fakeQueries) SubscriptionErr(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subErr
}

// withPrincipal stands in for the guard on granted navigations.
func withPrincipal(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id != "" {
			c.Set(middleware.PrincipalIDKey, id)
		}
		c.Next()
	}
}

type tokenIdentity map[string]*domain.Principal

func (t tokenIdentity) CurrentPrincipal(_ context.Context, credentials string) (*domain.Principal, error) {
	principal, ok := t[credentials]
	if !ok {
		return nil, nil
	}
	copied := *principal
	return &copied, nil
}

func (t tokenIdentity) OnPrincipalChanged(func(domain.PrincipalChange)) (func(), error) {
	return func() {}, nil
}

func (t tokenIdentity) SignOut(_ context.Context, credentials string) (*domain.Principal, error) {
	principal := t[credentials]
	delete(t, credentials)
	return principal, nil
}

func newTestGuard(t *testing.T, identity tokenIdentity) *middleware.Guard {
	t.Helper()
	sessionGuard := usecase.NewSessionGuard(usecase.SessionGuardDependencies{
		Identity: identity,
		Routes: domain.RouteTable{
			Public:    []string{"/", "/menu"},
			AuthOnly:  []string{"/login"},
			Protected: []string{"/dashboard", "/booking"},
			Admin:     []string{"/admin"},
			Login:     "/login",
			Landing:   "/dashboard",
			SignedOut: "/",
		},
		Logger: zaptest.NewLogger(t),
	}).WithClock(func() time.Time { return handlerNow })
	return middleware.NewGuard(sessionGuard, "salon_session", zaptest.NewLogger(t))
}
