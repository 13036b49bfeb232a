package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nodusnet/console/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Platform      PlatformConfig
	Session       SessionConfig
	Guard         GuardConfig
	SSO           SSOConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Allowed CORS origins for the console frontend
	CORSOrigins []string
}

// PlatformConfig holds connection settings for the upstream platform API
type PlatformConfig struct {
	// Base URL of the platform REST API, e.g. https://platform.nodus.net
	URL string

	// WebSocket URL for the platform event socket. Derived from URL when
	// empty (https -> wss).
	EventsURL string

	// Bearer token for the event socket. Empty connects unauthenticated,
	// for platforms that leave the socket open.
	ServiceToken string
}

// SessionConfig holds session store settings
type SessionConfig struct {
	// Redis URL for the session store. Empty selects the in-memory store.
	RedisURL string

	// Session lifetime.
	TTL time.Duration

	// Cron spec for periodic permission catalog refresh, e.g. "@every 15m".
	// Empty disables the refresh job.
	CatalogRefresh string
}

// GuardConfig holds route guard settings
type GuardConfig struct {
	// Path to the YAML route policy file. Empty disables policy routes.
	PolicyPath string

	// Reload the policy file on change.
	PolicyWatch bool
}

// SSOConfig holds OIDC single sign-on settings
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	// Directory for the audit log files. Empty disables file auditing.
	Dir string

	// Number of recent events kept in memory for the API.
	MemoryCapacity int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
	TracingInsecure    bool
}

// LoadConfig loads configuration from a .env file (when present) and
// environment variables. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; explicit env vars are the production path.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CONSOLE_HOST", "0.0.0.0"),
			Port:            getEnv("CONSOLE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CONSOLE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CONSOLE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CONSOLE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CONSOLE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CONSOLE_HEALTH_PORT", "9090"),
			CORSOrigins:     getEnvList("CONSOLE_CORS_ORIGINS", nil),
		},
		Platform: PlatformConfig{
			URL:          getEnv("CONSOLE_PLATFORM_URL", ""),
			EventsURL:    getEnv("CONSOLE_PLATFORM_EVENTS_URL", ""),
			ServiceToken: getEnv("CONSOLE_PLATFORM_SERVICE_TOKEN", ""),
		},
		Session: SessionConfig{
			RedisURL:       getEnv("CONSOLE_REDIS_URL", ""),
			TTL:            getEnvDuration("CONSOLE_SESSION_TTL", 8*time.Hour),
			CatalogRefresh: getEnv("CONSOLE_CATALOG_REFRESH", "@every 15m"),
		},
		Guard: GuardConfig{
			PolicyPath:  getEnv("CONSOLE_POLICY_PATH", ""),
			PolicyWatch: getEnvBool("CONSOLE_POLICY_WATCH", true),
		},
		SSO: SSOConfig{
			Enabled:      getEnvBool("CONSOLE_SSO_ENABLED", false),
			IssuerURL:    getEnv("CONSOLE_SSO_ISSUER_URL", ""),
			ClientID:     getEnv("CONSOLE_SSO_CLIENT_ID", ""),
			ClientSecret: getEnv("CONSOLE_SSO_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("CONSOLE_SSO_REDIRECT_URL", ""),
		},
		Audit: AuditConfig{
			Dir:            getEnv("CONSOLE_AUDIT_DIR", ""),
			MemoryCapacity: getEnvInt("CONSOLE_AUDIT_MEMORY_CAPACITY", 1024),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLogLevel(strings.ToLower(getEnv("CONSOLE_LOG_LEVEL", "info"))),
			MetricsEnabled:     getEnvBool("CONSOLE_METRICS_ENABLED", true),
			TracingEnabled:     getEnvBool("CONSOLE_TRACING_ENABLED", false),
			TracingEndpoint:    getEnv("CONSOLE_TRACING_ENDPOINT", "localhost:4317"),
			TracingServiceName: getEnv("CONSOLE_TRACING_SERVICE_NAME", "nodus-console"),
			TracingInsecure:    getEnvBool("CONSOLE_TRACING_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Platform.URL == "" {
		return fmt.Errorf("platform URL is required (CONSOLE_PLATFORM_URL)")
	}
	u, err := url.Parse(c.Platform.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("platform URL must be http or https: %s", c.Platform.URL)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO issuer URL, client ID, and client secret are required when SSO is enabled")
		}
		if c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
		}
	}

	if c.Observability.TracingEnabled {
		if c.Observability.TracingEndpoint == "" {
			return fmt.Errorf("tracing endpoint is required when tracing is enabled")
		}
		if c.Observability.TracingServiceName == "" {
			return fmt.Errorf("tracing service name is required when tracing is enabled")
		}
	}

	return nil
}

// EventsURL returns the configured event socket URL, deriving one from the
// platform URL when unset.
func (c *PlatformConfig) EventsSocketURL() string {
	if c.EventsURL != "" {
		return c.EventsURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/event"
	return u.String()
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
