package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
	httproutes "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/routes"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

type staticIdentity map[string]*domain.Principal

func (s staticIdentity) CurrentPrincipal(_ context.Context, credentials string) (*domain.Principal, error) {
	return s[credentials], nil
}

func (s staticIdentity) OnPrincipalChanged(func(domain.PrincipalChange)) (func(), error) {
	return func() {}, nil
}

func (s staticIdentity) SignOut(_ context.Context, credentials string) (*domain.Principal, error) {
	return s[credentials], nil
}

type staticQueries struct{}

func (staticQueries) Collection() string { return "reservations" }

func (staticQueries) Get(context.Context, string, time.Time, time.Time, string, bool) ([]domain.Appointment, error) {
	return nil, nil
}

func (staticQueries) Prefetch(context.Context, time.Time, int, string) {}

func (staticQueries) ClearCache() {}

func (staticQueries) Subscribe(context.Context, time.Time, time.Time, string, func([]domain.Appointment)) (string, error) {
	return "", usecase.ErrFeedUnavailable
}

func (staticQueries) Unsubscribe(string) {}

func (staticQueries) SubscriptionErr(string) error { return nil }

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Env: "test"},
		Guard: config.GuardSettings{
			SessionCookie:   "salon_session",
			ClientCookie:    "salon_client",
			LoginRoute:      "/login",
			LandingRoute:    "/dashboard",
			SignedOutRoute:  "/",
			PublicRoutes:    []string{"/"},
			AuthOnlyRoutes:  []string{"/login"},
			ProtectedRoutes: []string{"/dashboard", "/api/v1/appointments", "/api/v1/cache"},
			AdminRoutes:     []string{"/admin"},
		},
	}
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	logger := zap.NewNop()

	sessionGuard := usecase.NewSessionGuard(usecase.SessionGuardDependencies{
		Identity: staticIdentity{
			"user-token": {ID: "u1", Role: domain.RoleUser, ExpiresAt: time.Now().Add(time.Hour)},
		},
		Routes: cfg.Guard.RouteTable(),
		Logger: logger,
	})

	return httproutes.Register(httproutes.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Guard:   middleware.NewGuard(sessionGuard, cfg.Guard.SessionCookie, logger),
		Queries: staticQueries{},
	})
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestAppointmentsRequireSession(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "returnUrl") {
		t.Fatalf("expected login redirect in body, got %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with session, got %d: %s", w.Code, w.Body.String())
	}
}

func TestNavigationIsReachableAnonymously(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/navigation?path=%2Fdashboard", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"reason":"unauthenticated"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	var issued bool
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "salon_client" && cookie.Value != "" {
			issued = true
		}
	}
	if !issued {
		t.Fatalf("expected client cookie issued")
	}
}
