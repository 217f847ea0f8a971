package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Session storage
	SessionStore    string // "postgres" or "redis"
	RedisURL        string
	SessionDuration time.Duration

	// Outbound delivery
	MailTransport      string // "smtp" or "ses"
	SMTPTimeout        time.Duration
	SMTPRequireTLS     bool
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	// Bootstrap relay configuration. Seeded into smtp_config at startup when
	// no active row exists; ignored afterwards.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Activity log
	LogsPageSize int

	// Failed-login throttling on POST /login
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		SessionStore:    getEnv("SESSION_STORE", "postgres"),
		RedisURL:        getEnv("REDIS_URL", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),

		MailTransport:      getEnv("MAIL_TRANSPORT", "smtp"),
		SMTPTimeout:        getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		SMTPRequireTLS:     getEnvBool("SMTP_REQUIRE_TLS", true),
		SESRegion:          getEnv("SES_REGION", ""),
		SESAccessKeyID:     getEnv("SES_ACCESS_KEY_ID", ""),
		SESSecretAccessKey: getEnv("SES_SECRET_ACCESS_KEY", ""),

		// No defaults: an empty host means nothing is seeded.
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "SES Tester"),

		LogsPageSize: getEnvInt("LOGS_PAGE_SIZE", 20),

		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: getEnvDuration("LOGIN_RATE_WINDOW", 15*time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE is 'redis'")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be either 'postgres' or 'redis', got: %s", c.SessionStore)
	}

	switch c.MailTransport {
	case "smtp", "ses":
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be either 'smtp' or 'ses', got: %s", c.MailTransport)
	}

	if (c.SESAccessKeyID == "") != (c.SESSecretAccessKey == "") {
		return fmt.Errorf("SES_ACCESS_KEY_ID and SES_SECRET_ACCESS_KEY must be set together")
	}

	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	if c.LogsPageSize < 1 || c.LogsPageSize > 200 {
		return fmt.Errorf("LOGS_PAGE_SIZE must be between 1 and 200, got: %d", c.LogsPageSize)
	}

	if c.LoginRateLimit < 1 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be positive, got: %d", c.LoginRateLimit)
	}

	return nil
}

// IsDevelopment reports whether the server runs with development defaults
// (text logs, non-secure cookies).
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
