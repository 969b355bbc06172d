// Package config resolves the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	devJWTSecret       = "dev-jwt-secret-change-me"
	devFileTokenSecret = "dev-file-token-secret"
)

// Config is immutable after Load; it is passed explicitly to constructors.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	Port     string `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`

	FileTokenSecret string        `env:"FILE_TOKEN_SECRET"`
	FileTokenTTL    time.Duration `env:"FILE_TOKEN_TTL" envDefault:"300s"`

	StorageDriver      string `env:"STORAGE_DRIVER" envDefault:"local"`
	UploadDir          string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseBucket     string `env:"SUPABASE_BUCKET"`

	PaymentProvider      string        `env:"PAYMENT_PROVIDER" envDefault:"mock"`
	StripeSecretKey      string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency      string        `env:"PAYMENT_CURRENCY" envDefault:"usd"`
	PaymentTimeout       time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
	RequireAcceptedQuote bool          `env:"PAYMENT_REQUIRE_ACCEPTED_QUOTE" envDefault:"false"`
	DevPaymentSecret     string        `env:"DEV_PAYMENT_SECRET"`

	RateLimit       int64         `env:"RATE_LIMIT" envDefault:"20"`
	RateLimitPeriod time.Duration `env:"RATE_LIMIT_PERIOD" envDefault:"1m"`
	RedisURL        string        `env:"REDIS_URL"`

	// Processor deliveries arrive from a few shared IPs and are signed.
	WebhookRateLimit int64 `env:"WEBHOOK_RATE_LIMIT" envDefault:"1000"`
}

// IsDev reports whether dev-only behaviour (mock payments, default secrets) is allowed.
func (c *Config) IsDev() bool { return c.Env == "dev" }

// Load reads .env (if present) and the environment.
// Warnings are returned for defaults that must not reach production.
func Load() (*Config, []string, error) {
	_ = godotenv.Load()
	return parse()
}

func parse() (*Config, []string, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PaymentProvider = strings.ToLower(strings.TrimSpace(cfg.PaymentProvider))
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	var warnings []string
	if !cfg.IsDev() {
		if len(cfg.JWTSecret) < 32 {
			return nil, nil, errors.New("config: JWT_SECRET must be at least 32 characters outside dev")
		}
		if len(cfg.FileTokenSecret) < 32 {
			return nil, nil, errors.New("config: FILE_TOKEN_SECRET must be at least 32 characters outside dev")
		}
		if cfg.PaymentProvider == "mock" {
			return nil, nil, errors.New("config: PAYMENT_PROVIDER=mock is only allowed in dev")
		}
	} else {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
			warnings = append(warnings, "using default JWT_SECRET")
		}
		if cfg.FileTokenSecret == "" {
			cfg.FileTokenSecret = devFileTokenSecret
			warnings = append(warnings, "using default FILE_TOKEN_SECRET")
		}
	}

	switch cfg.PaymentProvider {
	case "mock":
		if cfg.StripeWebhookSecret == "" {
			cfg.StripeWebhookSecret = "whsec_dev"
		}
	case "stripe":
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			return nil, nil, errors.New("config: STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required for PAYMENT_PROVIDER=stripe")
		}
	default:
		return nil, nil, fmt.Errorf("config: unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}

	switch cfg.StorageDriver {
	case "local":
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseBucket == "" {
			return nil, nil, errors.New("config: SUPABASE_URL and SUPABASE_BUCKET are required for STORAGE_DRIVER=supabase")
		}
	default:
		return nil, nil, fmt.Errorf("config: unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.FileTokenTTL <= 0 {
		cfg.FileTokenTTL = 300 * time.Second
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Second
	}
	return cfg, warnings, nil
}
