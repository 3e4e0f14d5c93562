package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port        string `env:"PORT,default=3000"`
	Env         string `env:"ENV,default=development"`
	DatabaseURL string `env:"DATABASE_URL"`
	Storage     string `env:"STORAGE,default=postgres"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS,default=10"`

	MaxTransferAmount int64         `env:"MAX_TRANSFER_AMOUNT,default=99999999999"`
	MaxTopUpAmount    int64         `env:"MAX_TOPUP_AMOUNT,default=1000000000"`
	MaxAccountBalance int64         `env:"MAX_ACCOUNT_BALANCE,default=99999999999"`
	MaxMemoLength     int           `env:"MAX_MEMO_LENGTH,default=500"`
	AllowSelfTransfer bool          `env:"ALLOW_SELF_TRANSFER,default=false"`
	LockTimeout       time.Duration `env:"LOCK_TIMEOUT,default=2s"`
	CommitRetries     int           `env:"COMMIT_RETRIES,default=3"`

	NotifyQueueSize int `env:"NOTIFY_QUEUE_SIZE,default=1024"`
	NotifyWorkers   int `env:"NOTIFY_WORKERS,default=4"`

	WebhookURL          string        `env:"WEBHOOK_URL"`
	WebhookSecret       string        `env:"WEBHOOK_SECRET"`
	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL,default=5s"`
	WebhookMaxAttempts  int           `env:"WEBHOOK_MAX_ATTEMPTS,default=5"`
	WebhookRatePerSec   float64       `env:"WEBHOOK_RATE_PER_SEC,default=10"`
	WebhookLease        time.Duration `env:"WEBHOOK_LEASE,default=1m"`

	RateLimitPerSec float64 `env:"RATE_LIMIT_PER_SEC,default=20"`
	RateLimitBurst  int     `env:"RATE_LIMIT_BURST,default=40"`
}

// LoadConfig reads the .env file if there is one, then the environment.
func LoadConfig() (*Config, error) {
	// The file is optional in production.
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}
	return FromEnv()
}

// FromEnv decodes the process environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.Storage = strings.ToLower(c.Storage)
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q (want postgres or memory)", c.Storage)
	}
	if c.MaxTransferAmount <= 0 || c.MaxTopUpAmount <= 0 || c.MaxAccountBalance <= 0 {
		return errors.New("amount limits must be positive")
	}
	if c.CommitRetries < 0 {
		return errors.New("COMMIT_RETRIES must not be negative")
	}
	// Outside production the worker signs with a placeholder key instead.
	if c.IsProduction() && c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set in production")
	}
	return nil
}

// Ledger returns the policy limits for the ledger service.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		MaxTransferAmount: c.MaxTransferAmount,
		MaxTopUpAmount:    c.MaxTopUpAmount,
		MaxAccountBalance: c.MaxAccountBalance,
		MaxMemoLength:     c.MaxMemoLength,
		AllowSelfTransfer: c.AllowSelfTransfer,
		LockTimeout:       c.LockTimeout,
		CommitRetries:     c.CommitRetries,
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlogLevel maps LOG_LEVEL onto slog; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the JSON logger the service installs as default.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
