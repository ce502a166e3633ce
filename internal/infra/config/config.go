package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/core/domain"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Guard     GuardSettings     `mapstructure:"guard"`
	Cache     CacheSettings     `mapstructure:"cache"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Origins returns the CORS allow-list with comma separated env values expanded.
func (a AppSettings) Origins() []string {
	return splitRoutes(a.AllowedOrigins)
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and the key layout of session state
type RedisSettings struct {
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	DB                  int           `mapstructure:"db"`
	Password            string        `mapstructure:"password"`
	TLSEnabled          bool          `mapstructure:"tls_enabled"`
	ClientPrefix        string        `mapstructure:"client_prefix"`
	ClientRetention     time.Duration `mapstructure:"client_retention"`
	SignOutPrefix       string        `mapstructure:"signout_prefix"`
	AppointmentsChannel string        `mapstructure:"appointments_channel"`
}

// KafkaSettings configures the session event producer and the appointment change consumer.
// An empty broker list switches both off.
type KafkaSettings struct {
	Brokers          []string `mapstructure:"brokers"`
	ClientID         string   `mapstructure:"client_id"`
	TopicPrefix      string   `mapstructure:"topic_prefix"`
	ConsumerGroup    string   `mapstructure:"consumer_group"`
	AppointmentTopic string   `mapstructure:"appointment_topic"`
}

// Enabled reports whether brokers are configured.
func (k KafkaSettings) Enabled() bool {
	return len(k.Brokers) > 0 && strings.TrimSpace(k.Brokers[0]) != ""
}

type JWTSettings struct {
	KeyDirectory     string        `mapstructure:"key_directory"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	SignOutRetention time.Duration `mapstructure:"signout_retention"`
}

// GuardSettings configures navigation decisions.
type GuardSettings struct {
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	SessionCookie     string        `mapstructure:"session_cookie"`
	ClientCookie      string        `mapstructure:"client_cookie"`
	LoginRoute        string        `mapstructure:"login_route"`
	LandingRoute      string        `mapstructure:"landing_route"`
	SignedOutRoute    string        `mapstructure:"signed_out_route"`
	PublicRoutes      []string      `mapstructure:"public_routes"`
	AuthOnlyRoutes    []string      `mapstructure:"auth_only_routes"`
	ProtectedRoutes   []string      `mapstructure:"protected_routes"`
	AdminRoutes       []string      `mapstructure:"admin_routes"`
}

// RouteTable converts the guard settings into the static route table.
func (g GuardSettings) RouteTable() domain.RouteTable {
	return domain.RouteTable{
		Public:    splitRoutes(g.PublicRoutes),
		AuthOnly:  splitRoutes(g.AuthOnlyRoutes),
		Protected: splitRoutes(g.ProtectedRoutes),
		Admin:     splitRoutes(g.AdminRoutes),
		Login:     g.LoginRoute,
		Landing:   g.LandingRoute,
		SignedOut: g.SignedOutRoute,
	}
}

// CacheSettings configures the appointment query cache.
type CacheSettings struct {
	TTL             time.Duration `mapstructure:"ttl"`
	Collection      string        `mapstructure:"collection"`
	PrefetchDays    int           `mapstructure:"prefetch_days"`
	PrefetchTimeout  time.Duration `mapstructure:"prefetch_timeout"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration        time.Duration `mapstructure:"window_duration"`
	NavigationMaxAttempts int           `mapstructure:"navigation_max_attempts"`
	PrefetchMaxAttempts   int           `mapstructure:"prefetch_max_attempts"`
	SignOutMaxAttempts    int           `mapstructure:"signout_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SALON")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.client_prefix",
		"redis.client_retention",
		"redis.signout_prefix",
		"redis.appointments_channel",
		"kafka.brokers",
		"kafka.client_id",
		"kafka.topic_prefix",
		"kafka.consumer_group",
		"kafka.appointment_topic",
		"jwt.key_directory",
		"jwt.issuer",
		"jwt.audience",
		"jwt.signout_retention",
		"guard.resolve_timeout",
		"guard.inactivity_timeout",
		"guard.session_cookie",
		"guard.client_cookie",
		"guard.login_route",
		"guard.landing_route",
		"guard.signed_out_route",
		"guard.public_routes",
		"guard.auth_only_routes",
		"guard.protected_routes",
		"guard.admin_routes",
		"cache.ttl",
		"cache.collection",
		"cache.prefetch_days",
		"cache.prefetch_timeout",
		"cache.subscribe_timeout",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.navigation_max_attempts",
		"rate_limit.prefetch_max_attempts",
		"rate_limit.signout_max_attempts",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "salon-session-guard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "salon")
	v.SetDefault("postgres.password", "salon_password")
	v.SetDefault("postgres.database", "salon")
	v.SetDefault("postgres.schema", "salon")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.client_prefix", "salon:client")
	v.SetDefault("redis.client_retention", "720h")
	v.SetDefault("redis.signout_prefix", "salon:signed_out")
	v.SetDefault("redis.appointments_channel", "salon:appointments:changed")

	// Kafka stays off until brokers are set.
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "salon-session-guard")
	v.SetDefault("kafka.topic_prefix", "salon")
	v.SetDefault("kafka.consumer_group", "salon-session-guard")
	v.SetDefault("kafka.appointment_topic", "salon.appointment.changed")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.issuer", "salon-auth")
	v.SetDefault("jwt.audience", "salon-web")
	v.SetDefault("jwt.signout_retention", "24h")

	v.SetDefault("guard.resolve_timeout", "10s")
	v.SetDefault("guard.inactivity_timeout", "8h")
	v.SetDefault("guard.session_cookie", "salon_session")
	v.SetDefault("guard.client_cookie", "salon_client")
	v.SetDefault("guard.login_route", "/login")
	v.SetDefault("guard.landing_route", "/dashboard")
	v.SetDefault("guard.signed_out_route", "/")
	v.SetDefault("guard.public_routes", []string{"/", "/about", "/menu", "/access"})
	v.SetDefault("guard.auth_only_routes", []string{"/login", "/register", "/forgot-password"})
	v.SetDefault("guard.protected_routes", []string{"/dashboard", "/booking", "/profile", "/reservations", "/api/v1/appointments", "/api/v1/cache"})
	v.SetDefault("guard.admin_routes", []string{"/admin", "/api/v1/admin"})

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.collection", "reservations")
	v.SetDefault("cache.prefetch_days", 7)
	v.SetDefault("cache.prefetch_timeout", "30s")
	v.SetDefault("cache.subscribe_timeout", "10s")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "salon-session-guard")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.navigation_max_attempts", 120)
	v.SetDefault("rate_limit.prefetch_max_attempts", 10)
	v.SetDefault("rate_limit.signout_max_attempts", 10)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "SALON_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// splitRoutes accepts both list values and comma separated env strings.
func splitRoutes(routes []string) []string {
	var out []string
	for _, entry := range routes {
		for _, route := range strings.Split(entry, ",") {
			if route = strings.TrimSpace(route); route != "" {
				out = append(out, route)
			}
		}
	}
	return out
}
