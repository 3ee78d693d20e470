// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/limit"
	"wallet-engine/pkg/db" // Import db package for its Config struct
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	LogLevel   string
	DB         db.Config

	// Engine
	LockTimeout           time.Duration
	LimitsLocation        *time.Location
	VerificationLimits    []domain.VerificationLimit
	ChargeRefreshInterval time.Duration
	SystemWalletID        int64
	SystemCurrency        string
	JWTSecret             string

	// Optional infrastructure; empty address disables it.
	NATSURL        string
	NATSSubject    string
	RedisAddr      string
	IdempotencyTTL time.Duration

	Notify NotifyConfig
}

// NotifyConfig configures post-commit notification delivery.
type NotifyConfig struct {
	Channels    []domain.NotificationChannel
	WebhookURL  string // relay every channel to this URL; empty logs instead
	Workers     int
	QueueSize   int
	MaxAttempts int
}

// LoadConfig loads configuration from environment variables, after a .env file if one exists.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (*AppConfig, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := getDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DB: db.Config{
			Host:     getEnv("DB_HOST", "localhost"), // Default to localhost for local development
			Port:     intVar("DB_PORT", 5432),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "walletdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		LockTimeout:           durationVar("LOCK_TIMEOUT", 5*time.Second),
		ChargeRefreshInterval: durationVar("CHARGE_REFRESH_INTERVAL", time.Minute),
		SystemWalletID:        int64(intVar("SYSTEM_WALLET_ID", 0)),
		SystemCurrency:        strings.ToUpper(getEnv("SYSTEM_CURRENCY", "USD")),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		NATSURL:               os.Getenv("NATS_URL"),
		NATSSubject:           getEnv("NATS_SUBJECT", "wallet.transactions.completed"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		IdempotencyTTL:        durationVar("IDEMPOTENCY_TTL", 24*time.Hour),
		Notify: NotifyConfig{
			WebhookURL:  os.Getenv("NOTIFY_WEBHOOK_URL"),
			Workers:     intVar("NOTIFY_WORKERS", 4),
			QueueSize:   intVar("NOTIFY_QUEUE_SIZE", 1000),
			MaxAttempts: intVar("NOTIFY_MAX_ATTEMPTS", 3),
		},
	}

	loc, err := time.LoadLocation(getEnv("LIMITS_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid LIMITS_TIMEZONE: %w", err))
	}
	cfg.LimitsLocation = loc

	cfg.VerificationLimits = limit.DefaultLimits()
	if raw := os.Getenv("VERIFICATION_LIMITS"); raw != "" {
		var limits []domain.VerificationLimit
		if err := json.Unmarshal([]byte(raw), &limits); err != nil {
			errs = append(errs, fmt.Errorf("invalid VERIFICATION_LIMITS: %w", err))
		} else if err := limit.Validate(limits); err != nil {
			errs = append(errs, fmt.Errorf("invalid VERIFICATION_LIMITS: %w", err))
		} else {
			cfg.VerificationLimits = limits
		}
	}

	if raw := os.Getenv("NOTIFY_CHANNELS"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			channel := domain.NotificationChannel(strings.ToUpper(strings.TrimSpace(c)))
			if !channel.Valid() {
				errs = append(errs, fmt.Errorf("invalid NOTIFY_CHANNELS entry %q", c))
				continue
			}
			cfg.Notify.Channels = append(cfg.Notify.Channels, channel)
		}
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
