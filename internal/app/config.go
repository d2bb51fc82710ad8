package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete server configuration, loadable from environment
// variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string        `usage:"Redis URL for cart sessions and rate limiting; empty keeps carts in memory" flag:"redis-url"`
	SessionTTL  time.Duration `default:"12h" usage:"Idle lifetime of a cart session in Redis" flag:"session-ttl"`
	Refund      RefundConfig
	Pricing     PricingConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RefundConfig controls the refund window and the background expiry sweep.
type RefundConfig struct {
	Window        time.Duration `default:"30m" usage:"How long after completion a sale accepts refunds" flag:"refund-window"`
	SweepInterval time.Duration `default:"1m"  usage:"How often expired sales are marked" flag:"refund-sweep-interval"`
}

// PricingConfig toggles optional promotion behavior.
type PricingConfig struct {
	BuyUnitDiscount bool    `default:"false" usage:"Also discount the buy unit of completed two-product bundles" flag:"buy-unit-discount"`
	BuyUnitRate     float64 `default:"0.05"  usage:"Buy unit discount as a fraction of its price" flag:"buy-unit-rate"`
	BuyUnitCap      float64 `default:"10"    usage:"Buy unit discount cap for fixed-value bundles" flag:"buy-unit-cap"`
}

// RateLimitConfig controls the per-register sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
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

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	case c.Refund.Window <= 0:
		return errors.Errorf("refund window must be positive, got %s", c.Refund.Window)
	case c.Refund.SweepInterval <= 0:
		return errors.Errorf("refund sweep interval must be positive, got %s", c.Refund.SweepInterval)
	case c.Pricing.BuyUnitRate < 0 || c.Pricing.BuyUnitRate > 1:
		return errors.Errorf("buy unit rate must be within [0, 1], got %v", c.Pricing.BuyUnitRate)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, REDIS_URL and PORT onto the POS_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
