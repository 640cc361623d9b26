package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config is loaded from DELIVERY_-prefixed environment variables, flags and
// YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DELIVERY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HS256 secret used to verify bearer tokens" flag:"jwt-secret"`
	Redis       RedisConfig
	AMQP        AMQPConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the restaurant cache when Addr is set.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address; empty disables caching"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	TTL      time.Duration `default:"30s" usage:"Restaurant cache TTL, at most 1m"`
}

// AMQPConfig enables order event publishing when URL is set.
type AMQPConfig struct {
	URL      string `default:"" usage:"RabbitMQ URL; empty disables order events"`
	Exchange string `default:"orders" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64       `default:"20" usage:"Sustained requests per second per client"`
	Burst int           `default:"40" usage:"Burst size per client"`
	TTL   time.Duration `default:"10m" usage:"Evict idle client buckets after"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DELIVERY",
		Files:     []string{"config.yaml", "/etc/delivery/config.yaml"},
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
		return errors.New("database URL is required: set DELIVERY_DATABASE_URL or DATABASE_URL")
	case len(c.JWTSecret) < 16:
		return errors.New("JWT secret must be at least 16 bytes: set DELIVERY_JWT_SECRET")
	case c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0:
		return errors.New("rate limit RPS and burst must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL, REDIS_URL and
// PORT variables set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
