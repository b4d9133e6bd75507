package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the call gate service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"callgate"`
	AllowAnyOrigin   bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`
	LogLevel         string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"APP_LOG_FORMAT" envDefault:"json"`

	MaxRingDuration time.Duration `env:"CALL_MAX_RING_DURATION" envDefault:"5m"`
	AuthTimeout     time.Duration `env:"CALL_AUTH_TIMEOUT" envDefault:"60s"`
	AuthGrace       time.Duration `env:"CALL_AUTH_GRACE" envDefault:"30s"`
	AudioDuringAuth string        `env:"CALL_AUDIO_DURING_AUTH" envDefault:"continue"`
	AuthTitle       string        `env:"CALL_AUTH_TITLE" envDefault:"Authentication Required"`
	AuthDescription string        `env:"CALL_AUTH_DESCRIPTION" envDefault:"Unlock device to answer call"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"presentation"`

	RedisAddr     string `env:"DELIVERY_REDIS_ADDR"`
	RedisPassword string `env:"DELIVERY_REDIS_PASSWORD"`
	RedisDB       int    `env:"DELIVERY_REDIS_DB" envDefault:"0"`
	RedisChannel  string `env:"DELIVERY_REDIS_CHANNEL" envDefault:"callgate:actions"`

	WebhookURL          string        `env:"DELIVERY_WEBHOOK_URL"`
	DeliveryTimeout     time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"5s"`
	DeliveryMaxAttempts int           `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"3"`

	RateLimit float64 `env:"API_RATE_LIMIT" envDefault:"20"`
	RateBurst int     `env:"API_RATE_BURST" envDefault:"40"`

	RingtoneToneHz []float64 `env:"RINGTONE_TONE_HZ" envSeparator:"," envDefault:"440,480"`
}

// Load reads an optional dotenv file, then the environment, and validates
// the result.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config parse error: %w", err)
	}
	cfg.AudioDuringAuth = strings.ToLower(strings.TrimSpace(cfg.AudioDuringAuth))
	cfg.AuthProvider = strings.ToLower(strings.TrimSpace(cfg.AuthProvider))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile loads ENV_FILE when set, else .env when present. Variables
// already in the environment win.
func loadEnvFile() error {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("ENV_FILE %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func (c Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return errors.New("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MaxRingDuration < time.Second {
		return errors.New("CALL_MAX_RING_DURATION must be at least 1s")
	}
	if c.AuthTimeout < 0 {
		return errors.New("CALL_AUTH_TIMEOUT must be >= 0")
	}
	if c.AuthGrace <= 0 {
		return errors.New("CALL_AUTH_GRACE must be positive")
	}
	switch c.AudioDuringAuth {
	case "continue", "pause":
	default:
		return fmt.Errorf("CALL_AUDIO_DURING_AUTH must be continue or pause, got %q", c.AudioDuringAuth)
	}
	switch c.AuthProvider {
	case "presentation", "none":
	default:
		return fmt.Errorf("AUTH_PROVIDER must be presentation or none, got %q", c.AuthProvider)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.DeliveryMaxAttempts <= 0 {
		return errors.New("DELIVERY_MAX_ATTEMPTS must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	if len(c.RingtoneToneHz) == 0 {
		return errors.New("RINGTONE_TONE_HZ must list at least one frequency")
	}
	for _, hz := range c.RingtoneToneHz {
		if hz <= 0 || hz >= 4000 {
			return fmt.Errorf("RINGTONE_TONE_HZ %.0f outside (0, 4000)", hz)
		}
	}
	return nil
}
