package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// SessionSecret signs the identity cookie.
	SessionSecret string `env:"SESSION_SECRET"`

	RoomProviderURL       string `env:"ROOM_PROVIDER_URL"`
	RoomProviderWSURL     string `env:"ROOM_PROVIDER_WS_URL"`
	RoomProviderAPIKey    string `env:"ROOM_PROVIDER_API_KEY"`
	RoomProviderAPISecret string `env:"ROOM_PROVIDER_API_SECRET"`

	// WebhookSecret authenticates room event callbacks from the provider.
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// TokenTTL bounds every issued room access token. Tokens are never
	// revoked server-side, so keep this well under typical session length.
	TokenTTL time.Duration `env:"TOKEN_TTL" default:"10m"`

	OrphanSweepInterval time.Duration `env:"ORPHAN_SWEEP_INTERVAL" default:"1m"`

	TokenRatePerSecond float64 `env:"TOKEN_RATE_PER_SECOND" default:"5"`
	TokenRateBurst     int     `env:"TOKEN_RATE_BURST" default:"10"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":             cfg.DatabaseURL,
		"REDIS_URL":                cfg.RedisURL,
		"SESSION_SECRET":           cfg.SessionSecret,
		"ROOM_PROVIDER_URL":        cfg.RoomProviderURL,
		"ROOM_PROVIDER_WS_URL":     cfg.RoomProviderWSURL,
		"ROOM_PROVIDER_API_KEY":    cfg.RoomProviderAPIKey,
		"ROOM_PROVIDER_API_SECRET": cfg.RoomProviderAPISecret,
		"WEBHOOK_SECRET":           cfg.WebhookSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if cfg.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}

	return nil
}
