package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=bakery port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string `toml:"http_port"`
	DatabaseDSN string `toml:"database_dsn"`
	JWTSecret   string `toml:"jwt_secret"`
	CORSOrigins string `toml:"cors_allowed_origins"`
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	SeedDemo    bool   `toml:"seed_demo_data"`

	Payment PaymentConfig `toml:"payment"`
	AMQP    AMQPConfig    `toml:"amqp"`
}

type PaymentConfig struct {
	StripeSecretKey     string        `toml:"stripe_secret_key"`
	StripeWebhookSecret string        `toml:"stripe_webhook_secret"`
	Currency            string        `toml:"currency"`
	Timeout             time.Duration `toml:"-"`
	TimeoutRaw          string        `toml:"timeout"`
}

type AMQPConfig struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

// LoadError wraps a failure to read the config file named by BAKERY_CONFIG.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads BAKERY_CONFIG (TOML) when set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("BAKERY_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", or(cfg.HTTPPort, "8080"))
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", or(cfg.DatabaseDSN, defaultDSN))
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CORSOrigins = getEnv("CORS_ALLOWED_ORIGINS", or(cfg.CORSOrigins, "http://localhost:5173"))
	cfg.Environment = getEnv("ENVIRONMENT", or(cfg.Environment, "development"))
	cfg.LogLevel = getEnv("LOG_LEVEL", or(cfg.LogLevel, "info"))
	if v := os.Getenv("SEED_DEMO_DATA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("SEED_DEMO_DATA: %w", err)
		}
		cfg.SeedDemo = b
	}

	cfg.Payment.StripeSecretKey = getEnv("STRIPE_SECRET_KEY", cfg.Payment.StripeSecretKey)
	cfg.Payment.StripeWebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", cfg.Payment.StripeWebhookSecret)
	cfg.Payment.Currency = getEnv("CURRENCY", or(cfg.Payment.Currency, "usd"))
	timeout, err := time.ParseDuration(getEnv("PAYMENT_TIMEOUT", or(cfg.Payment.TimeoutRaw, "10s")))
	if err != nil {
		return nil, fmt.Errorf("PAYMENT_TIMEOUT: %w", err)
	}
	cfg.Payment.Timeout = timeout

	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getEnv("AMQP_EXCHANGE", or(cfg.AMQP.Exchange, "bakery.events"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.Payment.Timeout <= 0 {
		return errors.New("payment timeout must be positive")
	}
	if len(c.Payment.Currency) != 3 {
		return fmt.Errorf("currency %q is not a 3-letter ISO code", c.Payment.Currency)
	}
	return nil
}

// Warnings lists defaults that are acceptable locally but not in production.
func (c *Config) Warnings() []string {
	var w []string
	if c.DatabaseDSN == defaultDSN {
		w = append(w, "DATABASE_DSN uses the default local value")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		w = append(w, "CORS_ALLOWED_ORIGINS uses the default local value")
	}
	if c.Payment.StripeSecretKey == "" {
		w = append(w, "STRIPE_SECRET_KEY is empty, payment calls will fail")
	}
	if c.Payment.StripeWebhookSecret == "" {
		w = append(w, "STRIPE_WEBHOOK_SECRET is empty, webhooks are rejected")
	}
	return w
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
