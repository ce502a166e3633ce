package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/handlers"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Guard       *middleware.Guard
	Queries     handlers.AppointmentQueries
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	secure := deps.Config.App.Env == "production"

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext(middleware.ClientOptions{
		CookieName: deps.Config.Guard.ClientCookie,
		Secure:     secure,
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.Origins()))

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Guard == nil {
		return r
	}

	api := r.Group("/api/v1")
	api.Use(deps.Guard.Handler())
	{
		navigationHandler := handlers.NewNavigationHandler(deps.Guard)
		navigationHandler.RegisterRoutes(api.Group("/navigation"), rateLimited(deps, "navigation_client", deps.Config.RateLimit.NavigationMaxAttempts, middleware.ClientScope())...)

		authHandler := handlers.NewAuthHandler(deps.Guard, secure, deps.Logger)
		authHandler.RegisterRoutes(api.Group("/auth"), rateLimited(deps, "signout_client", deps.Config.RateLimit.SignOutMaxAttempts, middleware.ClientScope())...)

		if deps.Queries != nil {
			appointmentHandler := handlers.NewAppointmentHandler(deps.Queries, handlers.AppointmentHandlerOptions{
				PrefetchDays: deps.Config.Cache.PrefetchDays,
			}, deps.Logger)
			appointmentHandler.RegisterRoutes(api.Group("/appointments"), rateLimited(deps, "prefetch_principal", deps.Config.RateLimit.PrefetchMaxAttempts, middleware.PrincipalScope())...)
			appointmentHandler.RegisterCacheRoutes(api.Group("/cache"))
		}
	}

	return r
}

func rateLimited(deps Dependencies, endpoint string, attempts int, scope middleware.Scope) []gin.HandlerFunc {
	if deps.RateLimiter == nil || attempts <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.Limit(middleware.Budget{
		Endpoint: endpoint,
		Attempts: attempts,
		Window:   window,
		Scope:    scope,
	})}
}
