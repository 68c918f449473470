// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Update delivery modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// ErrMissingToken is returned when TELEGRAM_BOT_TOKEN is not set.
var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")

// Config holds all application configuration.
type Config struct {
	BotToken      string
	Port          string
	UpdateMode    string
	WebhookURL    string
	WebhookPath   string
	WebhookSecret string
	EventsToken   string

	HTestEnabled   bool
	FastOutEnabled bool

	VerificationTimeout time.Duration
	NoticeTTL           time.Duration
	MessageCleanup      time.Duration
	CountdownInterval   time.Duration
	SweepInterval       time.Duration

	Journal JournalConfig
}

// JournalConfig controls the sqlite outcome journal.
type JournalConfig struct {
	Enabled   bool
	DBPath    string
	Retention time.Duration
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      strings.TrimSpace(getEnv("TELEGRAM_BOT_TOKEN", "")),
		Port:          getEnv("PORT", "5000"),
		UpdateMode:    strings.ToLower(getEnv("UPDATE_MODE", ModeWebhook)),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookPath:   getEnv("WEBHOOK_PATH", "/webhook"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		EventsToken:   getEnv("EVENTS_TOKEN", ""),

		HTestEnabled:   getEnvBool("HTEST_ENABLED", true),
		FastOutEnabled: getEnvBool("FASTOUT_ENABLED", true),

		VerificationTimeout: getEnvDuration("VERIFICATION_TIMEOUT", 300*time.Second),
		NoticeTTL:           getEnvDuration("BAN_NOTIFICATION_TIME", 180*time.Second),
		MessageCleanup:      getEnvDuration("MESSAGE_CLEANUP_TIME", 600*time.Second),
		CountdownInterval:   getEnvDuration("COUNTDOWN_INTERVAL", 10*time.Second),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", time.Minute),

		Journal: JournalConfig{
			Enabled:   getEnvBool("JOURNAL_ENABLED", true),
			DBPath:    getEnv("JOURNAL_DB_PATH", "./data/journal.db"),
			Retention: getEnvDuration("JOURNAL_RETENTION", 720*time.Hour),
			QueueSize: getEnvInt("JOURNAL_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.UpdateMode {
	case ModeWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when UPDATE_MODE=%s", ModeWebhook)
		}
		if !strings.HasPrefix(c.WebhookPath, "/") {
			return fmt.Errorf("WEBHOOK_PATH must start with /")
		}
	case ModePolling:
	default:
		return fmt.Errorf("UPDATE_MODE must be %q or %q, got %q", ModeWebhook, ModePolling, c.UpdateMode)
	}
	if c.VerificationTimeout <= 0 {
		return fmt.Errorf("VERIFICATION_TIMEOUT must be > 0")
	}
	if c.NoticeTTL <= 0 {
		return fmt.Errorf("BAN_NOTIFICATION_TIME must be > 0")
	}
	if c.MessageCleanup <= 0 {
		return fmt.Errorf("MESSAGE_CLEANUP_TIME must be > 0")
	}
	if c.CountdownInterval < 0 {
		return fmt.Errorf("COUNTDOWN_INTERVAL cannot be negative")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Journal.Enabled {
		if c.Journal.DBPath == "" {
			return fmt.Errorf("JOURNAL_DB_PATH cannot be empty")
		}
		if c.Journal.QueueSize <= 0 {
			return fmt.Errorf("JOURNAL_QUEUE_SIZE must be > 0")
		}
	}
	return nil
}

// IsPolling reports whether updates are fetched by long polling.
func (c *Config) IsPolling() bool {
	return c.UpdateMode == ModePolling
}

// WebhookEndpoint returns the full URL registered with Telegram.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + c.WebhookPath
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts plain seconds ("300") or a Go duration ("5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
