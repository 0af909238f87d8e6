package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ENGAGE_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ENGAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for webhook delivery dedupe (ENGAGE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Auth        AuthConfig
	Payments    PaymentsConfig
	Dodo        DodoConfig
	Coinbase    CoinbaseConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig holds credential secrets.
type AuthConfig struct {
	JWTSecret    string `usage:"HMAC secret for bearer tokens" flag:"jwt-secret"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
}

// PaymentsConfig tunes reconciliation.
type PaymentsConfig struct {
	Timeout       time.Duration `default:"15s" usage:"Outbound provider call timeout"`
	SweepInterval time.Duration `default:"5m" usage:"How often stuck payments are re-polled; zero disables the sweeper"`
	SweepAge      time.Duration `default:"10m" usage:"Minimum time in processing before a payment is swept"`
	SweepBatch    int           `default:"50" usage:"Max orders polled per sweep"`
	DeliveryTTL   time.Duration `default:"72h" usage:"How long processed webhook deliveries are remembered"`
	// PublicBaseURL is where providers reach this API.
	PublicBaseURL string `usage:"Public base URL of this API" flag:"public-base-url"`
	// FrontendURL receives customers after checkout.
	FrontendURL string `usage:"Storefront base URL" flag:"frontend-url"`
}

// DodoConfig holds DodoPayments credentials.
type DodoConfig struct {
	APIKey        string
	BaseURL       string `default:"https://api.dodopayments.com"`
	WebhookSecret string
}

// CoinbaseConfig holds Coinbase Commerce credentials.
type CoinbaseConfig struct {
	APIKey        string
	BaseURL       string `default:"https://api.commerce.coinbase.com"`
	WebhookSecret string
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from .env, environment variables and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ENGAGE",
		Files:     []string{"config.yaml", "/etc/engage/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) to the ENGAGE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Payments.PublicBaseURL = strings.TrimRight(c.Payments.PublicBaseURL, "/")
	c.Payments.FrontendURL = strings.TrimRight(c.Payments.FrontendURL, "/")
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ENGAGE_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "" && c.Auth.APIKeyPepper == "":
		return errors.New("no credentials configured: set ENGAGE_AUTH_JWT_SECRET or ENGAGE_AUTH_API_KEY_PEPPER")
	}
	return nil
}
