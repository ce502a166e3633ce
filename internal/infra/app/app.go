package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/IBM/sarama"
	evbus "github.com/asaskevich/EventBus"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/port"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/database"
	kafkainfra "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/kafka"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/logger"
	redisinfra "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/redis"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/security"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/telemetry"
	postgresrepo "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/repository/postgres"
	redisrepo "github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/repository/redis"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/middleware"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/transport/http/routes"
	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/usecase"
)

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tracer  *telemetry.TracerProvider
	queries *usecase.CachedQueryLayer

	producer      *kafkainfra.Producer
	consumerGroup sarama.ConsumerGroup
	consumer      *kafkainfra.AppointmentChangeConsumer

	stopPrincipalSync func()
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &Application{cfg: cfg, logger: log, tracer: tracer}
	if err := a.wire(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	store := postgresrepo.NewAppointmentRepository(pool, collectionTables(cfg))
	feed := redisrepo.NewAppointmentFeed(redisClient.Client(), store, cfg.Redis.AppointmentsChannel, log)

	keys, err := security.LoadKeySet(cfg.JWT.KeyDirectory)
	if err != nil {
		return fmt.Errorf("init key set: %w", err)
	}
	decoder := security.NewClaimsDecoder(keys, cfg.JWT.Issuer, cfg.JWT.Audience)

	identity, err := security.NewTokenIdentityProvider(
		decoder,
		redisrepo.NewSignOutStore(redisClient.Client(), cfg.Redis.SignOutPrefix),
		evbus.New(),
		security.TokenIdentityProviderOptions{SignOutRetention: cfg.JWT.SignOutRetention},
		log,
	)
	if err != nil {
		return fmt.Errorf("init identity provider: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	queries := usecase.NewCachedQueryLayer(store, feed, usecase.CachedQueryOptions{
		TTL:              cfg.Cache.TTL,
		Collection:       cfg.Cache.Collection,
		PrefetchTimeout:  cfg.Cache.PrefetchTimeout,
		SubscribeTimeout: cfg.Cache.SubscribeTimeout,
	}, log).WithMetrics(metrics)
	a.queries = queries

	// Cached reads scoped to a principal must not outlive its session.
	stop, err := identity.OnPrincipalChanged(func(change domain.PrincipalChange) {
		if change.Principal == nil && change.PrincipalID != "" {
			queries.ForgetPrincipal(change.PrincipalID)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe principal changes: %w", err)
	}
	a.stopPrincipalSync = stop

	tracker := usecase.NewSessionTracker(
		redisrepo.NewClientStorage(redisClient.Client(), cfg.Redis.ClientPrefix, cfg.Redis.ClientRetention),
		cfg.Guard.InactivityTimeout,
	)

	sessionGuard := usecase.NewSessionGuard(usecase.SessionGuardDependencies{
		Identity:       identity,
		Tracker:        tracker,
		Routes:         cfg.Guard.RouteTable(),
		Events:         a.eventPublisher(),
		Metrics:        metrics,
		Logger:         log,
		ResolveTimeout: cfg.Guard.ResolveTimeout,
	})

	if err := a.startConsumer(redisrepo.NewChangeNotifier(redisClient.Client(), cfg.Redis.AppointmentsChannel)); err != nil {
		return err
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: redisrepo.DefaultRateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Guard:       middleware.NewGuard(sessionGuard, cfg.Guard.SessionCookie, log),
		Queries:     queries,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
	})
	return nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if !a.cfg.Kafka.Enabled() {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func (a *Application) startConsumer(notifier port.ChangeNotifier) error {
	if !a.cfg.Kafka.Enabled() || strings.TrimSpace(a.cfg.Kafka.AppointmentTopic) == "" {
		return nil
	}

	group, err := kafkainfra.NewConsumerGroup(a.cfg.Kafka)
	if err != nil {
		return fmt.Errorf("init kafka consumer group: %w", err)
	}
	a.consumerGroup = group
	a.consumer = kafkainfra.NewAppointmentChangeConsumer(notifier, a.logger)
	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.release()

	consumerErrCh := make(chan error, 1)
	if a.consumer != nil {
		go func() {
			topics := []string{a.cfg.Kafka.AppointmentTopic}
			if err := a.consumer.Run(ctx, a.consumerGroup, topics); err != nil {
				consumerErrCh <- err
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Appointment streams are held open until their request context ends.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	a.logger.Info("starting salon session guard",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-consumerErrCh:
		return err
	}
}

// release closes every resource acquired so far, in reverse order of acquisition.
func (a *Application) release() {
	if a.stopPrincipalSync != nil {
		a.stopPrincipalSync()
	}
	if a.queries != nil {
		a.queries.Close()
		a.queries.WaitPrefetches()
	}
	if a.consumerGroup != nil {
		if err := a.consumerGroup.Close(); err != nil {
			a.logger.Warn("close kafka consumer group", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
}

func collectionTables(cfg *config.AppConfig) map[string]string {
	schema := strings.TrimSpace(cfg.Postgres.Schema)
	if schema == "" {
		schema = "salon"
	}
	collection := strings.TrimSpace(cfg.Cache.Collection)
	if collection == "" {
		collection = usecase.DefaultCollection
	}
	return map[string]string{
		collection: pgx.Identifier{schema, collection}.Sanitize(),
	}
}
