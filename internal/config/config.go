package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Lock backends.
const (
	LockBackendMemory = "memory"
	LockBackendSQLite = "sqlite"
	LockBackendRedis  = "redis"
)

// Config struct for environment variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath   string `envconfig:"DB_PATH" default:"transfer_monitor.db"`

	PutioToken string `envconfig:"PUTIO_TOKEN" required:"true"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	TelegramBotToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    string `envconfig:"TELEGRAM_CHAT_ID"`

	NotifyInterval       time.Duration `envconfig:"NOTIFY_INTERVAL" default:"2s"`
	FinalDeliveryTimeout time.Duration `envconfig:"FINAL_DELIVERY_TIMEOUT" default:"1m"`

	LockBackend string        `envconfig:"LOCK_BACKEND" default:"memory"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"2m"`

	Redis struct {
		Addr     string `split_words:"true" default:"localhost:6379"`
		Password string `split_words:"true"`
		DB       int    `split_words:"true" default:"0"`
	}

	WorkDir         string        `envconfig:"WORK_DIR" default:"work"`
	MaxFileSize     int64         `envconfig:"MAX_FILE_SIZE" default:"4294967296"`
	FileMaxAge      time.Duration `envconfig:"FILE_MAX_AGE" default:"20m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	switch c.LockBackend {
	case LockBackendMemory, LockBackendSQLite, LockBackendRedis:
	default:
		return fmt.Errorf("invalid lock backend: %s", c.LockBackend)
	}

	if c.NotifyInterval <= 0 {
		return fmt.Errorf("notify interval must be positive, got %s", c.NotifyInterval)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("telegram needs both TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
