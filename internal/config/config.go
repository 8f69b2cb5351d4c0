package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/quota-dispatch/internal/domain"
)

const (
	LedgerBackendFile     = "file"
	LedgerBackendRedis    = "redis"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
	APIPort   int    `env:"API_PORT,default=8080"`

	LedgerBackend string `env:"LEDGER_BACKEND,default=file"`
	LedgerFile    string `env:"LEDGER_FILE,default=usage_ledger.json"`
	DatabaseDSN   string `env:"DATABASE_DSN"`
	RedisURL      string `env:"REDIS_URL"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`

	RateLimitPerSec         int  `env:"RATE_LIMIT_PER_SEC,default=100"`
	BulkConcurrency         int  `env:"BULK_CONCURRENCY,default=50"`
	BulkDelayMS             int  `env:"BULK_DELAY_MS,default=0"`
	ProviderTimeoutMS       int  `env:"PROVIDER_TIMEOUT_MS,default=10000"`
	StrictPreferredProvider bool `env:"STRICT_PREFERRED_PROVIDER,default=false"`
	BulkQueuePrefetch       int  `env:"BULK_QUEUE_PREFETCH,default=1"`

	ProvidersFile string `env:"PROVIDERS_FILE"`
	DefaultRegion string `env:"DEFAULT_REGION,default=US"`

	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `env:"TWILIO_PHONE_NUMBER"`

	ClickSendUsername string `env:"CLICKSEND_USERNAME"`
	ClickSendAPIKey   string `env:"CLICKSEND_API_KEY"`
	SenderID          string `env:"SENDER_ID,default=SMS"`

	TextBeltAPIKey      string `env:"TEXTBELT_API_KEY"`
	TextBeltFreeEnabled bool   `env:"TEXTBELT_FREE_ENABLED,default=true"`

	SlybroadcastEmail    string `env:"SLYBROADCAST_EMAIL"`
	SlybroadcastPassword string `env:"SLYBROADCAST_PASSWORD"`
	SlybroadcastAudioURL string `env:"SLYBROADCAST_AUDIO_URL"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL"`
	EmailSubject      string `env:"EMAIL_SUBJECT,default=Notification"`

	WebhookSiteURL string `env:"WEBHOOK_SITE_URL"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

func LoadFiles(dotenvFiles ...string) (*Config, error) {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerBackendFile:
		if strings.TrimSpace(c.LedgerFile) == "" {
			return fmt.Errorf("%w: LEDGER_FILE is required for the file ledger", domain.ErrValidation)
		}
	case LedgerBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis ledger", domain.ErrValidation)
		}
	case LedgerBackendPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("%w: DATABASE_DSN is required for the postgres ledger", domain.ErrValidation)
		}
	case LedgerBackendMemory:
	default:
		return fmt.Errorf("%w: unknown LEDGER_BACKEND %q", domain.ErrValidation, c.LedgerBackend)
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("%w: API_PORT must be between 1 and 65535", domain.ErrValidation)
	}
	if c.BulkConcurrency <= 0 {
		return fmt.Errorf("%w: BULK_CONCURRENCY must be positive", domain.ErrValidation)
	}
	if c.BulkDelayMS < 0 {
		return fmt.Errorf("%w: BULK_DELAY_MS must not be negative", domain.ErrValidation)
	}
	if c.BulkQueuePrefetch <= 0 {
		return fmt.Errorf("%w: BULK_QUEUE_PREFETCH must be positive", domain.ErrValidation)
	}
	if c.ProviderTimeoutMS <= 0 {
		return fmt.Errorf("%w: PROVIDER_TIMEOUT_MS must be positive", domain.ErrValidation)
	}
	return nil
}

func (c *Config) BulkDelay() time.Duration {
	return time.Duration(c.BulkDelayMS) * time.Millisecond
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMS) * time.Millisecond
}
