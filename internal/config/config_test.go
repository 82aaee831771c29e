package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("NOTARY_API_BASE_URL", "")
	t.Setenv("NOTARY_LIMIT_FAIL_MODE", "")
	t.Setenv("DASHBOARD_POLL_INTERVAL", "")
	t.Setenv("DASHBOARD_MAX_FAILURES", "")
	t.Setenv("REDIS_ADDR", "")
	cfg := Load()
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Fatalf("expected default base url, got %s", cfg.APIBaseURL)
	}
	if cfg.SuggestDaysAhead != 14 {
		t.Fatalf("expected 14 day lookahead, got %d", cfg.SuggestDaysAhead)
	}
	if cfg.LimitFailsOpen() {
		t.Fatalf("expected limit guard to fail closed by default")
	}
	if cfg.DashboardPollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", cfg.DashboardPollInterval)
	}
	if cfg.DashboardMaxFailures != 3 {
		t.Fatalf("expected 3 max failures, got %d", cfg.DashboardMaxFailures)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected redis cache disabled by default, got %s", cfg.RedisAddr)
	}
	if cfg.Location() != time.Local {
		t.Fatalf("expected local timezone by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NOTARY_API_BASE_URL", "https://api.example.test/")
	t.Setenv("NOTARY_USER_ID", " 42 ")
	t.Setenv("NOTARY_TIMEZONE", "America/New_York")
	t.Setenv("NOTARY_RATE_LIMIT_RPS", "2.5")
	t.Setenv("NOTARY_LIMIT_FAIL_MODE", "OPEN")
	t.Setenv("DASHBOARD_POLL_INTERVAL", "10s")
	t.Setenv("DASHBOARD_MAX_BACKOFF", "1m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.APIBaseURL != "https://api.example.test" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
	if cfg.UserID != "42" {
		t.Fatalf("expected user id override, got %q", cfg.UserID)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Fatalf("expected timezone override, got %s", cfg.Location())
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
	if !cfg.LimitFailsOpen() {
		t.Fatalf("expected fail-open override")
	}
	if cfg.DashboardPollInterval != 10*time.Second || cfg.DashboardMaxBackoff != time.Minute {
		t.Fatalf("expected poller overrides, got %s / %s", cfg.DashboardPollInterval, cfg.DashboardMaxBackoff)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
}

func TestLocationFallsBackOnUnknownZone(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus_Mons"}
	if cfg.Location() != time.Local {
		t.Fatalf("expected local fallback for unknown zone")
	}
}

func TestCORSOriginsSplit(t *testing.T) {
	t.Setenv("STATUS_CORS_ALLOWED_ORIGINS", " https://admin.example.test, ,http://localhost:3000")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[0] != "https://admin.example.test" {
		t.Fatalf("expected trimmed origin, got %q", cfg.CORSAllowedOrigins[0])
	}
}
