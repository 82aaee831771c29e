package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Limit guard failure modes.
const (
	LimitFailClosed = "closed"
	LimitFailOpen   = "open"
)

// Config holds client configuration
type Config struct {
	Env      string
	LogLevel string

	// Backend API
	APIBaseURL     string
	APIToken       string
	UserID         string
	Timezone       string
	HTTPTimeout    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Booking flow
	SuggestDaysAhead int
	LimitFailMode    string

	// Admin dashboard stats poller
	DashboardPollInterval time.Duration
	DashboardMaxFailures  int
	DashboardMaxBackoff   time.Duration

	// Shared unavailable-date cache
	RedisAddr                string
	RedisPassword            string
	RedisTLS                 bool
	UnavailableDatesCacheTTL time.Duration

	// Local status server
	StatusAddr         string
	CORSAllowedOrigins []string
	RefreshRPS         float64
	RefreshBurst       int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:     strings.TrimRight(getEnv("NOTARY_API_BASE_URL", "http://localhost:8000"), "/"),
		APIToken:       getEnv("NOTARY_API_TOKEN", ""),
		UserID:         strings.TrimSpace(getEnv("NOTARY_USER_ID", "")),
		Timezone:       getEnv("NOTARY_TIMEZONE", "Local"),
		HTTPTimeout:    getEnvAsDuration("NOTARY_HTTP_TIMEOUT", 15*time.Second),
		RateLimitRPS:   getEnvAsFloat("NOTARY_RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("NOTARY_RATE_LIMIT_BURST", 5),

		SuggestDaysAhead: getEnvAsInt("NOTARY_SUGGEST_DAYS_AHEAD", 14),
		LimitFailMode:    normalizeFailMode(getEnv("NOTARY_LIMIT_FAIL_MODE", LimitFailClosed)),

		DashboardPollInterval: getEnvAsDuration("DASHBOARD_POLL_INTERVAL", 30*time.Second),
		DashboardMaxFailures:  getEnvAsInt("DASHBOARD_MAX_FAILURES", 3),
		DashboardMaxBackoff:   getEnvAsDuration("DASHBOARD_MAX_BACKOFF", 5*time.Minute),

		RedisAddr:                getEnv("REDIS_ADDR", ""),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisTLS:                 getEnvAsBool("REDIS_TLS", false),
		UnavailableDatesCacheTTL: getEnvAsDuration("UNAVAILABLE_DATES_CACHE_TTL", 5*time.Minute),

		StatusAddr:         getEnv("STATUS_ADDR", ":9090"),
		CORSAllowedOrigins: splitList(getEnv("STATUS_CORS_ALLOWED_ORIGINS", "")),
		RefreshRPS:         getEnvAsFloat("STATUS_REFRESH_RPS", 0.2),
		RefreshBurst:       getEnvAsInt("STATUS_REFRESH_BURST", 2),
	}
}

// Location resolves the configured timezone. Unknown names fall back to
// the process-local zone.
func (c *Config) Location() *time.Location {
	if c == nil {
		return time.Local
	}
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// LimitFailsOpen reports whether an unknown daily limit should allow booking.
func (c *Config) LimitFailsOpen() bool {
	return c != nil && c.LimitFailMode == LimitFailOpen
}

func normalizeFailMode(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), LimitFailOpen) {
		return LimitFailOpen
	}
	return LimitFailClosed
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
