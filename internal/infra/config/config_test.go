package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Guard.InactivityTimeout != 8*time.Hour {
		t.Fatalf("expected 8h inactivity timeout, got %s", cfg.Guard.InactivityTimeout)
	}
	if cfg.Guard.ResolveTimeout != 10*time.Second {
		t.Fatalf("expected 10s resolve timeout, got %s", cfg.Guard.ResolveTimeout)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.Cache.TTL)
	}
	if cfg.Cache.SubscribeTimeout != 10*time.Second {
		t.Fatalf("expected 10s subscribe timeout, got %s", cfg.Cache.SubscribeTimeout)
	}
	if cfg.Kafka.Enabled() {
		t.Fatalf("kafka must be disabled without brokers")
	}
	if cfg.Postgres.Schema != "salon" {
		t.Fatalf("unexpected schema %q", cfg.Postgres.Schema)
	}
}

func TestLoadReadsPrefixedEnv(t *testing.T) {
	t.Setenv("SALON_GUARD_INACTIVITY_TIMEOUT", "30m")
	t.Setenv("SALON_CACHE_COLLECTION", "bookings")
	t.Setenv("SALON_GUARD_ADMIN_ROUTES", "/admin, /staff")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Guard.InactivityTimeout != 30*time.Minute {
		t.Fatalf("expected env override, got %s", cfg.Guard.InactivityTimeout)
	}
	if cfg.Cache.Collection != "bookings" {
		t.Fatalf("expected env override, got %q", cfg.Cache.Collection)
	}

	admin := cfg.Guard.RouteTable().Admin
	if len(admin) != 2 || admin[0] != "/admin" || admin[1] != "/staff" {
		t.Fatalf("unexpected admin routes %v", admin)
	}
}

func TestGuardSettingsRouteTable(t *testing.T) {
	settings := GuardSettings{
		LoginRoute:      "/login",
		LandingRoute:    "/dashboard",
		SignedOutRoute:  "/",
		PublicRoutes:    []string{"/", " /about "},
		AuthOnlyRoutes:  []string{"/login,/register"},
		ProtectedRoutes: []string{"/dashboard", ""},
		AdminRoutes:     []string{"/admin"},
	}

	table := settings.RouteTable()
	if len(table.Public) != 2 || table.Public[1] != "/about" {
		t.Fatalf("unexpected public routes %v", table.Public)
	}
	if len(table.AuthOnly) != 2 || table.AuthOnly[1] != "/register" {
		t.Fatalf("unexpected auth-only routes %v", table.AuthOnly)
	}
	if len(table.Protected) != 1 {
		t.Fatalf("unexpected protected routes %v", table.Protected)
	}
	if table.Login != "/login" || table.Landing != "/dashboard" || table.SignedOut != "/" {
		t.Fatalf("unexpected targets %+v", table)
	}
}

func TestKafkaSettingsEnabled(t *testing.T) {
	if (KafkaSettings{Brokers: []string{""}}).Enabled() {
		t.Fatalf("blank broker must not enable kafka")
	}
	if !(KafkaSettings{Brokers: []string{"localhost:9092"}}).Enabled() {
		t.Fatalf("expected kafka enabled")
	}
}

func TestAppSettingsOrigins(t *testing.T) {
	settings := AppSettings{AllowedOrigins: []string{"https://salon.example.com, http://localhost:3000", ""}}

	origins := settings.Origins()
	if len(origins) != 2 || origins[0] != "https://salon.example.com" || origins[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", origins)
	}
}
