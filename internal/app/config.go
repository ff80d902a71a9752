package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (HAWKER_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (HAWKER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `default:"redis://localhost:6379/0" usage:"Redis URL for payment sessions and rate limits (HAWKER_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (HAWKER_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Kafka        KafkaConfig
	NETS         NETSConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// KafkaConfig controls the order.paid event producer. Events are not
// published when no brokers are set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"order.paid" usage:"Topic for paid order events"`
}

// NETSConfig points at the NETS QR gateway.
type NETSConfig struct {
	BaseURL      string        `usage:"Gateway base URL" flag:"nets-base-url"`
	RequestPath  string        `default:"/gateway/qr/request" usage:"QR request path"`
	QueryPath    string        `default:"/gateway/qr/query" usage:"QR status query path"`
	APIKey       string        `usage:"Gateway api-key header"`
	ProjectID    string        `usage:"Gateway project-id header"`
	NotifyMobile int64         `default:"0" usage:"notify_mobile flag sent with QR requests"`
	Timeout      time.Duration `default:"10s" usage:"Gateway call timeout"`
}

// CheckoutConfig controls order pricing and the payment session.
type CheckoutConfig struct {
	ServiceFeeCents int64         `default:"0" usage:"Service fee added to every order, in cents"`
	PaymentWindow   time.Duration `default:"5m" usage:"How long an issued QR stays payable"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "HAWKER",
		Files:     []string{"config.yaml", "/etc/hawker/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms onto the configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if v := getenv("REDIS_URL"); v != "" && getenv("HAWKER_REDIS_URL") == "" {
		c.RedisURL = v
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set HAWKER_DATABASE_URL or DATABASE_URL")
	case c.Checkout.ServiceFeeCents < 0:
		return errors.Errorf("service fee must not be negative, got %d", c.Checkout.ServiceFeeCents)
	case c.Checkout.PaymentWindow <= 0:
		return errors.New("payment window must be positive")
	}
	return nil
}
